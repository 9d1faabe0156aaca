package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/dispatch"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// Alert suppression reasons returned in AlertResult.Reason
const (
	ReasonAlertsDisabled = "Alerts disabled for this deployment"
	ReasonEventDisabled  = "Event type disabled"
	ReasonNoRecipients   = "No recipients resolved"
)

// Alerter runs the event-based alert pipeline
type Alerter struct {
	store          Store
	resolver       *Resolver
	dispatcher     *dispatch.Dispatcher
	defaultWebhook string
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewAlerter creates an event-based alerter
func NewAlerter(store Store, resolver *Resolver, dispatcher *dispatch.Dispatcher, defaultWebhook string, metricsManager *metrics.Manager) *Alerter {
	return &Alerter{
		store:          store,
		resolver:       resolver,
		dispatcher:     dispatcher,
		defaultWebhook: defaultWebhook,
		logger:         utils.ComponentLogger("alerter"),
		metricsManager: metricsManager,
	}
}

// SendAlert dispatches an event-based alert for a deployment. Only a
// missing deployment aborts; every other failure degrades to a
// per-channel result. Sent:true means the pipeline ran, not that every
// channel succeeded.
func (a *Alerter) SendAlert(ctx context.Context, deploymentID string, event models.AlertEvent, eventData map[string]string) (*models.AlertResult, error) {
	dep, err := a.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	cfg := dep.AlertConfig.Normalize()

	if !cfg.AlertsEnabled() {
		a.recordSuppressed(event, "disabled")
		return &models.AlertResult{Sent: false, Reason: ReasonAlertsDisabled}, nil
	}

	if !cfg.EventEnabled(event) {
		a.recordSuppressed(event, "event_disabled")
		return &models.AlertResult{Sent: false, Reason: ReasonEventDisabled}, nil
	}

	product, err := a.store.GetProduct(ctx, dep.ProductID)
	if err != nil {
		// Product lookup failure degrades: recipients and webhook
		// resolution just lose their product-level sources.
		a.logger.WithFields(logrus.Fields{
			"deployment_id": deploymentID,
			"error":         err,
		}).Warn("Product lookup failed")
		product = nil
	}

	productName := ""
	if product != nil {
		productName = product.Name
	}

	// Event-based alerts do not auto-include the broadcast role.
	recipients := a.resolver.ResolveRecipients(ctx, dep, product, cfg, ResolveOptions{})

	id, _ := utils.GenerateID()
	subject := AlertSubject(event, productName)
	body := AlertBody(event, dep, product, eventData)

	results := make(map[string]*models.ChannelResult)

	// Email and chat are dispatched independently; a failure on one
	// never blocks the other.
	if len(recipients) > 0 {
		emailNotification := &models.Notification{
			ID:               id,
			DeploymentID:     dep.ID,
			Recipients:       recipients,
			Subject:          subject,
			Body:             body,
			Channel:          models.ChannelEmail,
			NotificationType: string(event),
			SentAt:           time.Now(),
		}
		results[string(models.ChannelEmail)] = a.dispatcher.SendEmail(ctx, emailNotification)
	} else {
		a.logger.WithField("deployment_id", deploymentID).Warn("No recipients resolved for alert")
		results[string(models.ChannelEmail)] = &models.ChannelResult{Sent: false, Reason: ReasonNoRecipients}
	}

	if cfg.GoogleChat.Enabled == nil || *cfg.GoogleChat.Enabled {
		webhookURL := ResolveChatWebhook(dep, product, a.defaultWebhook)
		if webhookURL != "" {
			chatNotification := &models.Notification{
				ID:               id,
				DeploymentID:     dep.ID,
				Subject:          subject,
				Body:             body,
				Channel:          models.ChannelGoogleChat,
				NotificationType: string(event),
				SentAt:           time.Now(),
			}
			results[string(models.ChannelGoogleChat)] = a.dispatcher.SendChat(ctx, webhookURL, chatNotification)
		} else {
			results[string(models.ChannelGoogleChat)] = &models.ChannelResult{Sent: false, Reason: dispatch.ReasonNoWebhook}
		}
	} else {
		results[string(models.ChannelGoogleChat)] = &models.ChannelResult{Sent: false, Reason: "Chat disabled"}
	}

	a.appendAudit(ctx, dep.ID, string(event), subject, recipients, results)

	if a.metricsManager != nil {
		a.metricsManager.GetPrometheusMetrics().RecordAlertSent(string(event))
	}

	return &models.AlertResult{Sent: true, Results: results}, nil
}

func (a *Alerter) recordSuppressed(event models.AlertEvent, reason string) {
	if a.metricsManager != nil {
		a.metricsManager.GetPrometheusMetrics().RecordAlertSuppressed(string(event), reason)
	}
}

// appendAudit summarizes both channel outcomes in one entry per
// channel, best-effort.
func (a *Alerter) appendAudit(ctx context.Context, deploymentID, event, subject string, recipients []string, results map[string]*models.ChannelResult) {
	for channel, result := range results {
		detail := result.Reason
		if result.Error != "" {
			detail = result.Error
		}

		entry := &models.AuditEntry{
			DeploymentID:     deploymentID,
			NotificationType: event,
			Channel:          channel,
			Recipients:       recipients,
			Subject:          subject,
			Success:          result.Sent,
			Detail:           detail,
		}
		if err := a.store.AppendAuditLog(ctx, entry); err != nil {
			a.logger.WithFields(logrus.Fields{
				"deployment_id": deploymentID,
				"channel":       channel,
				"error":         err,
			}).Warn("Failed to append audit log")
		}
	}
}
