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

// Store is the persistence capability the engine depends on
type Store interface {
	Directory
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
	ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.Deployment, error)
	UpdateDeploymentNotificationState(ctx context.Context, id string, state map[models.ReminderClass]string) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	AppendAuditLog(ctx context.Context, entry *models.AuditEntry) error
}

// Evaluator runs the daily time-based reminder batch
type Evaluator struct {
	store          Store
	resolver       *Resolver
	dispatcher     *dispatch.Dispatcher
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewEvaluator creates a trigger evaluator
func NewEvaluator(store Store, resolver *Resolver, dispatcher *dispatch.Dispatcher, metricsManager *metrics.Manager) *Evaluator {
	return &Evaluator{
		store:          store,
		resolver:       resolver,
		dispatcher:     dispatcher,
		logger:         utils.ComponentLogger("evaluator"),
		metricsManager: metricsManager,
	}
}

// RunDaily evaluates every non-released deployment against today and
// dispatches due reminders. One deployment's failure is counted and
// logged but never stops the batch.
func (e *Evaluator) RunDaily(ctx context.Context, today time.Time) (*models.RunResult, error) {
	startTime := time.Now()
	result := &models.RunResult{StartedAt: startTime}

	deployments, err := e.store.ListDeployments(ctx, models.DeploymentFilter{ExcludeReleased: true})
	if err != nil {
		return nil, err
	}

	for _, dep := range deployments {
		result.Processed++

		sent, err := e.evaluateDeployment(ctx, dep, today)
		if err != nil {
			result.Errors++
			e.logger.WithFields(logrus.Fields{
				"deployment_id": dep.ID,
				"error":         err,
			}).Error("Failed to evaluate deployment")
			continue
		}
		if sent {
			result.Sent++
		} else {
			result.Skipped++
		}
	}

	result.Duration = time.Since(startTime)
	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().RecordBatchRun(result.Processed, result.Errors, result.Duration)
	}

	e.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"skipped":   result.Skipped,
		"errors":    result.Errors,
		"duration":  result.Duration,
	}).Info("Daily reminder batch completed")

	return result, nil
}

// evaluateDeployment classifies one deployment and dispatches at most
// one reminder. Returns true when a reminder was sent.
func (e *Evaluator) evaluateDeployment(ctx context.Context, dep *models.Deployment, today time.Time) (bool, error) {
	// Released deployments and deployments without a delivery date
	// never get reminders.
	if dep.IsReleased() || dep.NextDeliveryDate == nil {
		return false, nil
	}

	daysUntil := DaysUntil(today, *dep.NextDeliveryDate)
	class, ok := ClassifyReminder(daysUntil)
	if !ok {
		return false, nil
	}

	todayISO := ISODate(today)

	// Idempotency gate: each class fires at most once per calendar day.
	if dep.LastSent(class) == todayISO {
		e.logger.WithFields(logrus.Fields{
			"deployment_id": dep.ID,
			"class":         class,
		}).Debug("Reminder already sent today, suppressing")
		return false, nil
	}

	product, err := e.store.GetProduct(ctx, dep.ProductID)
	if err != nil {
		return false, err
	}

	recipients := e.resolver.ResolveRecipients(ctx, dep, product, dep.AlertConfig,
		ResolveOptions{IncludeBroadcastRole: true})

	// Empty recipient set: skip without touching state, so a config
	// fix later the same day can still send.
	if len(recipients) == 0 {
		e.logger.WithFields(logrus.Fields{
			"deployment_id": dep.ID,
			"class":         class,
		}).Warn("No recipients resolved, skipping reminder")
		return false, nil
	}

	// State is persisted before the send: at-most-once per day. A send
	// failure after this point loses the reminder for today rather
	// than risking duplicates on retry.
	dep.MarkSent(class, todayISO)
	if err := e.store.UpdateDeploymentNotificationState(ctx, dep.ID, dep.LastNotificationSent); err != nil {
		return false, err
	}

	productName := ""
	if product != nil {
		productName = product.Name
	}

	id, _ := utils.GenerateID()
	notification := &models.Notification{
		ID:               id,
		DeploymentID:     dep.ID,
		Recipients:       recipients,
		Subject:          ReminderSubject(class, productName, -daysUntil),
		Body:             ReminderBody(class, dep, product),
		Channel:          models.ChannelEmail,
		NotificationType: string(class),
		SentAt:           time.Now(),
	}

	channelResult := e.dispatcher.SendEmail(ctx, notification)

	if channelResult.Sent && e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().RecordReminderSent(string(class))
	}

	e.appendAudit(ctx, dep.ID, notification, channelResult)

	return true, nil
}

// appendAudit records the outcome best-effort; audit failures are
// swallowed.
func (e *Evaluator) appendAudit(ctx context.Context, deploymentID string, n *models.Notification, result *models.ChannelResult) {
	detail := result.Reason
	if result.Error != "" {
		detail = result.Error
	}

	entry := &models.AuditEntry{
		DeploymentID:     deploymentID,
		NotificationType: n.NotificationType,
		Channel:          string(n.Channel),
		Recipients:       n.Recipients,
		Subject:          n.Subject,
		Success:          result.Sent,
		Detail:           detail,
	}
	if err := e.store.AppendAuditLog(ctx, entry); err != nil {
		e.logger.WithFields(logrus.Fields{
			"deployment_id": deploymentID,
			"error":         err,
		}).Warn("Failed to append audit log")
	}
}
