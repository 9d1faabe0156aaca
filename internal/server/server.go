package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/dispatch"
	"github.com/controltower/notifier/internal/engine"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/internal/scheduler"
	"github.com/controltower/notifier/internal/store"
	"github.com/controltower/notifier/pkg/utils"
)

// HTTPServer exposes the notification engine over HTTP
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        store.Storage
	evaluator      *engine.Evaluator
	alerter        *engine.Alerter
	dispatcher     *dispatch.Dispatcher
	scheduler      *scheduler.Scheduler
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	version        string
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	storage store.Storage,
	evaluator *engine.Evaluator,
	alerter *engine.Alerter,
	dispatcher *dispatch.Dispatcher,
	sched *scheduler.Scheduler,
	metricsManager *metrics.Manager,
	version string,
) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		storage:        storage,
		evaluator:      evaluator,
		alerter:        alerter,
		dispatcher:     dispatcher,
		scheduler:      sched,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		version:        version,
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
		s.router.HandleFunc("/ready", s.readyHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Reminder endpoints
	api.HandleFunc("/reminders/run", s.runRemindersHandler).Methods("POST")

	// Alert endpoints
	api.HandleFunc("/deployments/{id}/alerts", s.sendAlertHandler).Methods("POST")
	api.HandleFunc("/deployments/{id}/audit", s.auditLogHandler).Methods("GET")

	// Ingestion endpoints: the tracked records this engine evaluates
	api.HandleFunc("/deployments", s.upsertDeploymentHandler).Methods("PUT")
	api.HandleFunc("/deployments/{id}", s.getDeploymentHandler).Methods("GET")
	api.HandleFunc("/deployments/{id}", s.deleteDeploymentHandler).Methods("DELETE")
	api.HandleFunc("/products", s.upsertProductHandler).Methods("PUT")
	api.HandleFunc("/users", s.upsertUserHandler).Methods("PUT")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.storage.Ping() == nil)
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the HTTP server
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.storage.Ping() == nil)
		if s.scheduler != nil {
			s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("scheduler", s.scheduler.IsRunning())
		}
	}
}

// Handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   s.version,
	})
}

func (s *HTTPServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not ready", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"storage":  storageStats,
		"dispatch": s.dispatcher.GetStats(),
	}
	if s.scheduler != nil {
		stats["last_batch"] = s.scheduler.LastResult()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// runRemindersHandler triggers a daily reminder batch immediately
func (s *HTTPServer) runRemindersHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.evaluator.RunDaily(r.Context(), time.Now())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Reminder batch failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// sendAlertRequest is the body of POST /deployments/{id}/alerts
type sendAlertRequest struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data,omitempty"`
}

func (s *HTTPServer) sendAlertHandler(w http.ResponseWriter, r *http.Request) {
	deploymentID := mux.Vars(r)["id"]

	var req sendAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if !models.ValidAlertEvent(req.Event) {
		s.writeError(w, http.StatusBadRequest, "Unknown alert event type", fmt.Errorf("event: %s", req.Event))
		return
	}

	result, err := s.alerter.SendAlert(r.Context(), deploymentID, models.AlertEvent(req.Event), req.Data)
	if err != nil {
		if utils.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Deployment not found", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Alert pipeline failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// upsertDeploymentHandler saves a deployment record and fires the
// matching event-based alert when the save creates it or changes its
// status. Alert delivery problems never fail the save.
func (s *HTTPServer) upsertDeploymentHandler(w http.ResponseWriter, r *http.Request) {
	var dep models.Deployment
	if err := json.NewDecoder(r.Body).Decode(&dep); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dep.ProductID == "" {
		s.writeError(w, http.StatusBadRequest, "product_id is required", nil)
		return
	}
	if !models.ValidDeploymentStatus(string(dep.Status)) {
		s.writeError(w, http.StatusBadRequest, "Unknown deployment status", fmt.Errorf("status: %s", dep.Status))
		return
	}
	if dep.ID == "" {
		id, err := utils.GenerateID()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to generate id", err)
			return
		}
		dep.ID = id
	}

	existing, err := s.storage.GetDeployment(r.Context(), dep.ID)
	if err != nil && !utils.IsNotFound(err) {
		s.writeError(w, http.StatusInternalServerError, "Failed to load deployment", err)
		return
	}

	if err := s.storage.SaveDeployment(r.Context(), &dep); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save deployment", err)
		return
	}

	event, eventData := transitionEvent(existing, &dep)

	response := map[string]interface{}{"deployment": &dep}
	if event != "" {
		alertResult, alertErr := s.alerter.SendAlert(r.Context(), dep.ID, event, eventData)
		if alertErr != nil {
			s.logger.WithFields(logrus.Fields{
				"deployment_id": dep.ID,
				"event":         event,
				"error":         alertErr,
			}).Warn("Alert for saved deployment failed")
		} else {
			response["alert"] = alertResult
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// transitionEvent maps a save to the alert event it triggers, if any
func transitionEvent(existing, saved *models.Deployment) (models.AlertEvent, map[string]string) {
	if existing == nil {
		return models.EventCreated, nil
	}
	if existing.Status == saved.Status {
		return "", nil
	}

	data := map[string]string{
		"from": string(existing.Status),
		"to":   string(saved.Status),
	}
	switch saved.Status {
	case models.StatusBlocked:
		return models.EventBlocked, data
	case models.StatusReleased:
		return models.EventReleased, data
	}
	return models.EventStatusChanged, data
}

func (s *HTTPServer) getDeploymentHandler(w http.ResponseWriter, r *http.Request) {
	dep, err := s.storage.GetDeployment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if utils.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Deployment not found", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to get deployment", err)
		return
	}
	s.writeJSON(w, http.StatusOK, dep)
}

func (s *HTTPServer) deleteDeploymentHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.DeleteDeployment(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to delete deployment", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func (s *HTTPServer) upsertProductHandler(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if product.ID == "" || product.Name == "" {
		s.writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	if err := s.storage.SaveProduct(r.Context(), &product); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save product", err)
		return
	}
	s.writeJSON(w, http.StatusOK, &product)
}

func (s *HTTPServer) upsertUserHandler(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if user.ID == "" || user.Name == "" {
		s.writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	if err := s.storage.SaveUser(r.Context(), &user); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save user", err)
		return
	}
	s.writeJSON(w, http.StatusOK, &user)
}

func (s *HTTPServer) auditLogHandler(w http.ResponseWriter, r *http.Request) {
	deploymentID := mux.Vars(r)["id"]

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := s.storage.GetAuditLog(r.Context(), deploymentID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get audit log", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deployment_id": deploymentID,
		"entries":       entries,
		"count":         len(entries),
	})
}

// Utility methods

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
