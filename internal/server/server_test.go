package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/dispatch"
	"github.com/controltower/notifier/internal/engine"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/internal/store"
)

func newTestServer(t *testing.T) (*HTTPServer, store.Storage) {
	t.Helper()

	storage := store.NewSQLiteStorage(&store.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "notifier.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, storage.Connect())
	require.NoError(t, storage.Migrate())
	t.Cleanup(func() { storage.Close() })

	dispatcher := dispatch.NewDispatcher(&config.SMTPConfig{}, &config.ChatConfig{Timeout: time.Second}, nil)
	resolver := engine.NewResolver(storage, "general_manager", nil)
	evaluator := engine.NewEvaluator(storage, resolver, dispatcher, nil)
	alerter := engine.NewAlerter(storage, resolver, dispatcher, "", nil)

	server := NewHTTPServer(&config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		EnableHealth: true,
	}, storage, evaluator, alerter, dispatcher, nil, nil, "test")

	return server, storage
}

func doRequest(s *HTTPServer, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "test", resp["version"])
}

func TestReadyEndpoint(t *testing.T) {
	server, storage := newTestServer(t)

	rec := doRequest(server, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	storage.Close()
	rec = doRequest(server, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendAlertEndpoint(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveDeployment(ctx, &models.Deployment{
		ID:                 "dep-1",
		ProductID:          "prod-1",
		Status:             models.StatusInProgress,
		NotificationEmails: []string{"a@x.com"},
	}))

	body, _ := json.Marshal(map[string]interface{}{
		"event": "blocked",
		"data":  map[string]string{"reason": "infra freeze"},
	})

	rec := doRequest(server, http.MethodPost, "/api/v1/deployments/dep-1/alerts", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AlertResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Sent)
	require.Contains(t, result.Results, "email")

	// Email transport is unconfigured in tests, so the channel soft-fails
	assert.False(t, result.Results["email"].Sent)
}

func TestSendAlertEndpoint_UnknownEvent(t *testing.T) {
	server, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"event": "exploded"})
	rec := doRequest(server, http.MethodPost, "/api/v1/deployments/dep-1/alerts", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAlertEndpoint_MalformedBody(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/deployments/dep-1/alerts", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAlertEndpoint_DeploymentNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"event": "created"})
	rec := doRequest(server, http.MethodPost, "/api/v1/deployments/missing/alerts", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunRemindersEndpoint(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	dueToday := time.Now()
	require.NoError(t, storage.SaveDeployment(ctx, &models.Deployment{
		ID:                 "dep-1",
		ProductID:          "prod-1",
		Status:             models.StatusInProgress,
		NextDeliveryDate:   &dueToday,
		NotificationEmails: []string{"a@x.com"},
	}))

	rec := doRequest(server, http.MethodPost, "/api/v1/reminders/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)
}

func TestUpsertDeploymentEndpoint_CreateFiresCreatedAlert(t *testing.T) {
	server, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"id":                  "dep-1",
		"product_id":          "prod-1",
		"status":              "Not Started",
		"notification_emails": []string{"a@x.com"},
	})

	rec := doRequest(server, http.MethodPut, "/api/v1/deployments", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Deployment *models.Deployment  `json:"deployment"`
		Alert      *models.AlertResult `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dep-1", resp.Deployment.ID)
	require.NotNil(t, resp.Alert)
	assert.True(t, resp.Alert.Sent)
}

func TestUpsertDeploymentEndpoint_StatusChangeFiresAlert(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveDeployment(ctx, &models.Deployment{
		ID:                 "dep-1",
		ProductID:          "prod-1",
		Status:             models.StatusInProgress,
		NotificationEmails: []string{"a@x.com"},
	}))

	body, _ := json.Marshal(map[string]interface{}{
		"id":                  "dep-1",
		"product_id":          "prod-1",
		"status":              "Blocked",
		"notification_emails": []string{"a@x.com"},
	})

	rec := doRequest(server, http.MethodPut, "/api/v1/deployments", body)
	require.Equal(t, http.StatusOK, rec.Code)

	// The blocked transition is recorded in the audit log
	entries, err := storage.GetAuditLog(ctx, "dep-1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "blocked", entries[0].NotificationType)
}

func TestUpsertDeploymentEndpoint_NoStatusChangeNoAlert(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveDeployment(ctx, &models.Deployment{
		ID:        "dep-1",
		ProductID: "prod-1",
		Status:    models.StatusInProgress,
	}))

	body, _ := json.Marshal(map[string]interface{}{
		"id":          "dep-1",
		"product_id":  "prod-1",
		"status":      "In Progress",
		"client_name": "Globex",
	})

	rec := doRequest(server, http.MethodPut, "/api/v1/deployments", body)
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := storage.GetAuditLog(ctx, "dep-1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpsertDeploymentEndpoint_Validation(t *testing.T) {
	server, _ := newTestServer(t)

	missingProduct, _ := json.Marshal(map[string]string{"id": "dep-1", "status": "Blocked"})
	rec := doRequest(server, http.MethodPut, "/api/v1/deployments", missingProduct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badStatus, _ := json.Marshal(map[string]string{"id": "dep-1", "product_id": "prod-1", "status": "Exploded"})
	rec = doRequest(server, http.MethodPut, "/api/v1/deployments", badStatus)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndDeleteDeploymentEndpoints(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveDeployment(ctx, &models.Deployment{
		ID:        "dep-1",
		ProductID: "prod-1",
		Status:    models.StatusInProgress,
	}))

	rec := doRequest(server, http.MethodGet, "/api/v1/deployments/dep-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var dep models.Deployment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dep))
	assert.Equal(t, "dep-1", dep.ID)

	rec = doRequest(server, http.MethodDelete, "/api/v1/deployments/dep-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(server, http.MethodGet, "/api/v1/deployments/dep-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertProductAndUserEndpoints(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	product, _ := json.Marshal(map[string]string{"id": "prod-1", "name": "Billing Platform"})
	rec := doRequest(server, http.MethodPut, "/api/v1/products", product)
	require.Equal(t, http.StatusOK, rec.Code)

	loaded, err := storage.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Billing Platform", loaded.Name)

	user, _ := json.Marshal(map[string]interface{}{
		"id": "u-1", "name": "Jane", "email": "jane@x.com", "active": true,
	})
	rec = doRequest(server, http.MethodPut, "/api/v1/users", user)
	require.Equal(t, http.StatusOK, rec.Code)

	users, err := storage.FindUsersByName(ctx, "Jane")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "jane@x.com", users[0].Email)

	// Missing name is rejected
	rec = doRequest(server, http.MethodPut, "/api/v1/products", []byte(`{"id":"prod-2"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLogEndpoint(t *testing.T) {
	server, storage := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, storage.AppendAuditLog(ctx, &models.AuditEntry{
			DeploymentID:     "dep-1",
			NotificationType: "created",
			Channel:          "email",
			Success:          true,
		}))
	}

	rec := doRequest(server, http.MethodGet, "/api/v1/deployments/dep-1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		DeploymentID string               `json:"deployment_id"`
		Entries      []*models.AuditEntry `json:"entries"`
		Count        int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dep-1", resp.DeploymentID)
	assert.Equal(t, 3, resp.Count)

	rec = doRequest(server, http.MethodGet, "/api/v1/deployments/dep-1/audit?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}
