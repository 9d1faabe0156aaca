package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controltower/notifier/internal/dispatch"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

func newTestAlerter(store *fakeStore, defaultWebhook string) *Alerter {
	resolver := NewResolver(store, "general_manager", nil)
	return NewAlerter(store, resolver, testDispatcher(), defaultWebhook, nil)
}

func TestSendAlert_UnknownDeploymentAborts(t *testing.T) {
	store := newFakeStore()
	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), "missing", models.EventCreated, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, utils.IsNotFound(err))
}

func TestSendAlert_AlertsDisabled(t *testing.T) {
	store := newFakeStore()
	dep := testDeployment()
	off := false
	dep.AlertConfig.Enabled = &off
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventCreated, nil)
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.Equal(t, "Alerts disabled for this deployment", result.Reason)
	assert.Empty(t, store.audits)
}

func TestSendAlert_EventTypeDisabled(t *testing.T) {
	store := newFakeStore()
	dep := testDeployment()
	dep.AlertConfig.Events[models.EventBlocked] = false
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventBlocked, nil)
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.Equal(t, "Event type disabled", result.Reason)

	// Other event types are unaffected
	dep.NotificationEmails = []string{"a@x.com"}
	result, err = alerter.SendAlert(context.Background(), dep.ID, models.EventReleased, nil)
	require.NoError(t, err)
	assert.True(t, result.Sent)
}

func TestSendAlert_ChannelIsolation(t *testing.T) {
	var chatPayload []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatPayload, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newFakeStore()
	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	dep.AlertConfig.GoogleChat.WebhookURL = server.URL
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventReleased, nil)
	require.NoError(t, err)

	// Email transport is unconfigured, yet the chat channel delivered
	// and the pipeline as a whole ran.
	assert.True(t, result.Sent)
	require.Contains(t, result.Results, string(models.ChannelEmail))
	require.Contains(t, result.Results, string(models.ChannelGoogleChat))
	assert.False(t, result.Results[string(models.ChannelEmail)].Sent)
	assert.Equal(t, dispatch.ReasonSMTPNotConfigured, result.Results[string(models.ChannelEmail)].Reason)
	assert.True(t, result.Results[string(models.ChannelGoogleChat)].Sent)

	var card dispatch.ChatCard
	require.NoError(t, json.Unmarshal(chatPayload, &card))
	require.Len(t, card.CardsV2, 1)
	assert.Equal(t, "[Deployment] Released: Billing Platform", card.CardsV2[0].Card.Header.Title)
}

func TestSendAlert_ChatFailureDoesNotBlockResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	store := newFakeStore()
	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	dep.AlertConfig.GoogleChat.WebhookURL = server.URL
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventBlocked,
		map[string]string{"reason": "infra freeze"})
	require.NoError(t, err)
	assert.True(t, result.Sent)

	chat := result.Results[string(models.ChannelGoogleChat)]
	assert.False(t, chat.Sent)
	assert.Contains(t, chat.Error, "status: 429")
}

func TestSendAlert_NoWebhookConfigured(t *testing.T) {
	store := newFakeStore()
	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventCreated, nil)
	require.NoError(t, err)
	assert.True(t, result.Sent)

	chat := result.Results[string(models.ChannelGoogleChat)]
	assert.False(t, chat.Sent)
	assert.Equal(t, "No webhook configured", chat.Reason)
}

func TestSendAlert_ChatDisabled(t *testing.T) {
	store := newFakeStore()
	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	off := false
	dep.AlertConfig.GoogleChat.Enabled = &off
	dep.AlertConfig.GoogleChat.WebhookURL = "https://chat.example.com/hook"
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventCreated, nil)
	require.NoError(t, err)

	chat := result.Results[string(models.ChannelGoogleChat)]
	assert.False(t, chat.Sent)
	assert.Equal(t, "Chat disabled", chat.Reason)
}

func TestSendAlert_NoRecipients(t *testing.T) {
	store := newFakeStore()
	dep := testDeployment()
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventCreated, nil)
	require.NoError(t, err)
	assert.True(t, result.Sent)

	email := result.Results[string(models.ChannelEmail)]
	assert.False(t, email.Sent)
	assert.Equal(t, "No recipients resolved", email.Reason)
}

func TestSendAlert_ProductLookupFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.productErr = fmt.Errorf("products unavailable")

	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	result, err := alerter.SendAlert(context.Background(), dep.ID, models.EventStatusChanged,
		map[string]string{"from": "Not Started", "to": "In Progress"})
	require.NoError(t, err)
	assert.True(t, result.Sent)

	// Product name degrades to empty in the subject
	require.NotEmpty(t, store.audits)
	assert.Equal(t, "[Deployment] Status changed: ", store.audits[0].Subject)
}

func TestSendAlert_AuditPerChannel(t *testing.T) {
	store := newFakeStore()
	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	alerter := newTestAlerter(store, "")

	_, err := alerter.SendAlert(context.Background(), dep.ID, models.EventCreated, nil)
	require.NoError(t, err)

	require.Len(t, store.audits, 2)
	channels := []string{store.audits[0].Channel, store.audits[1].Channel}
	assert.ElementsMatch(t, []string{"email", "google_chat"}, channels)
	for _, entry := range store.audits {
		assert.Equal(t, string(models.EventCreated), entry.NotificationType)
		assert.Equal(t, "[Deployment] New deployment created: Billing Platform", entry.Subject)
	}
}

func TestSendAlert_BroadcastRoleExcluded(t *testing.T) {
	store := newFakeStore()
	store.addUser("GM", "gm@x.com", "general_manager")

	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep

	alerter := newTestAlerter(store, "")

	_, err := alerter.SendAlert(context.Background(), dep.ID, models.EventCreated, nil)
	require.NoError(t, err)

	require.NotEmpty(t, store.audits)
	assert.ElementsMatch(t, []string{"a@x.com"}, store.audits[0].Recipients)
}
