package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the notifier
type PrometheusMetrics struct {
	// Reminder batch metrics
	RemindersSentTotal        *prometheus.CounterVec
	BatchRunsTotal            prometheus.Counter
	BatchDuration             prometheus.Histogram
	BatchDeploymentsProcessed prometheus.Gauge
	BatchErrorsTotal          prometheus.Counter

	// Event alert metrics
	AlertsSentTotal       *prometheus.CounterVec
	AlertsSuppressedTotal *prometheus.CounterVec

	// Channel metrics
	ChannelSendsTotal    *prometheus.CounterVec
	ChannelFailuresTotal *prometheus.CounterVec
	ChannelSendDuration  *prometheus.HistogramVec

	// Recipient resolution metrics
	RecipientsResolved  prometheus.Histogram
	LookupFailuresTotal prometheus.Counter

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		RemindersSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_reminders_sent_total",
				Help: "Total number of scheduled reminders dispatched",
			},
			[]string{"class"},
		),

		BatchRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_batch_runs_total",
				Help: "Total number of daily reminder batch runs",
			},
		),

		BatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notifier_batch_duration_seconds",
				Help:    "Time spent on a full daily reminder batch",
				Buckets: prometheus.DefBuckets,
			},
		),

		BatchDeploymentsProcessed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_batch_deployments_processed",
				Help: "Deployments scanned by the last reminder batch",
			},
		),

		BatchErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_batch_errors_total",
				Help: "Per-deployment failures during reminder batches",
			},
		),

		AlertsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_alerts_sent_total",
				Help: "Total number of event-based alert pipelines run",
			},
			[]string{"event"},
		),

		AlertsSuppressedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_alerts_suppressed_total",
				Help: "Alerts suppressed by configuration",
			},
			[]string{"event", "reason"},
		),

		ChannelSendsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_channel_sends_total",
				Help: "Successful sends per delivery channel",
			},
			[]string{"channel"},
		),

		ChannelFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_channel_failures_total",
				Help: "Failed sends per delivery channel",
			},
			[]string{"channel", "reason"},
		),

		ChannelSendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_channel_send_duration_seconds",
				Help:    "Time spent delivering to a channel",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		RecipientsResolved: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notifier_recipients_resolved",
				Help:    "Size of resolved recipient sets",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),

		LookupFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_user_lookup_failures_total",
				Help: "Failed or empty user-by-name lookups",
			},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_database_operations_total",
				Help: "Total database operations",
			},
			[]string{"operation", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notifier_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordReminderSent records a dispatched scheduled reminder
func (p *PrometheusMetrics) RecordReminderSent(class string) {
	p.RemindersSentTotal.WithLabelValues(class).Inc()
}

// RecordBatchRun records the outcome of a daily batch
func (p *PrometheusMetrics) RecordBatchRun(processed, errors int, duration time.Duration) {
	p.BatchRunsTotal.Inc()
	p.BatchDuration.Observe(duration.Seconds())
	p.BatchDeploymentsProcessed.Set(float64(processed))
	p.BatchErrorsTotal.Add(float64(errors))
}

// RecordAlertSent records an event-based alert pipeline run
func (p *PrometheusMetrics) RecordAlertSent(event string) {
	p.AlertsSentTotal.WithLabelValues(event).Inc()
}

// RecordAlertSuppressed records a configuration-suppressed alert
func (p *PrometheusMetrics) RecordAlertSuppressed(event, reason string) {
	p.AlertsSuppressedTotal.WithLabelValues(event, reason).Inc()
}

// RecordChannelSend records a channel delivery attempt
func (p *PrometheusMetrics) RecordChannelSend(channel string, success bool, reason string, duration time.Duration) {
	p.ChannelSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
	if success {
		p.ChannelSendsTotal.WithLabelValues(channel).Inc()
	} else {
		p.ChannelFailuresTotal.WithLabelValues(channel, reason).Inc()
	}
}

// RecordRecipientsResolved records the size of a resolved recipient set
func (p *PrometheusMetrics) RecordRecipientsResolved(count int) {
	p.RecipientsResolved.Observe(float64(count))
}

// RecordLookupFailure records a failed user lookup
func (p *PrometheusMetrics) RecordLookupFailure() {
	p.LookupFailuresTotal.Inc()
}

// RecordDatabaseOperation records a database operation
func (p *PrometheusMetrics) RecordDatabaseOperation(operation, status string, duration time.Duration) {
	p.DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	p.DatabaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (p *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	p.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	p.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (p *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	p.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates a component health gauge
func (p *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	p.ComponentHealth.WithLabelValues(component).Set(v)
}
