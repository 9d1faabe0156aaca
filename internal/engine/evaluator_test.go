package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/dispatch"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
)

// testDispatcher returns a dispatcher whose email transport is
// unconfigured, so sends soft-fail without touching the network.
func testDispatcher() *dispatch.Dispatcher {
	return dispatch.NewDispatcher(&config.SMTPConfig{}, &config.ChatConfig{Timeout: time.Second}, nil)
}

func newTestEvaluator(store *fakeStore) *Evaluator {
	resolver := NewResolver(store, "general_manager", nil)
	return NewEvaluator(store, resolver, testDispatcher(), nil)
}

func dateDaysFromNow(today time.Time, days int) *time.Time {
	d := today.AddDate(0, 0, days)
	return &d
}

func TestEvaluateDeployment_ThreeDayReminder(t *testing.T) {
	store := newFakeStore()
	store.addUser("Jane", "jane@x.com", "")

	today := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 3)
	dep.NotificationEmails = []string{"a@x.com"}
	dep.OwnerName = "Jane"
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, store.stateUpdates, 1)
	assert.Equal(t, "dep-1", store.stateUpdates[0].deploymentID)
	assert.Equal(t, "2026-09-01", store.stateUpdates[0].state[models.Reminder3Days])

	require.Len(t, store.audits, 1)
	audit := store.audits[0]
	assert.Equal(t, "[Reminder] Deployment in 3 days: Billing Platform", audit.Subject)
	assert.ElementsMatch(t, []string{"a@x.com", "jane@x.com"}, audit.Recipients)
	assert.Equal(t, string(models.Reminder3Days), audit.NotificationType)
}

func TestEvaluateDeployment_SameDayIdempotence(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 7)
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)

	// Second evaluation on the same calendar day is suppressed
	sent, err = evaluator.evaluateDeployment(context.Background(), dep, today.Add(6*time.Hour))
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Len(t, store.stateUpdates, 1)
	assert.Len(t, store.audits, 1)
}

func TestEvaluateDeployment_OverdueFiresDaily(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, -2)
	dep.NotificationEmails = []string{"a@x.com"}
	dep.LastNotificationSent = map[models.ReminderClass]string{
		models.ReminderOverdue: "2026-08-31",
	}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	// Yesterday's send does not suppress today's overdue reminder
	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "2026-09-01", dep.LastSent(models.ReminderOverdue))

	require.Len(t, store.audits, 1)
	assert.Equal(t, "[OVERDUE] Deployment 2 days overdue: Billing Platform", store.audits[0].Subject)
}

func TestEvaluateDeployment_ReleasedNeverReminds(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.Status = models.StatusReleased
	dep.NextDeliveryDate = dateDaysFromNow(today, -5)
	dep.NotificationEmails = []string{"a@x.com"}

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, store.stateUpdates)
	assert.Empty(t, store.audits)
}

func TestEvaluateDeployment_NoDeliveryDate(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NotificationEmails = []string{"a@x.com"}

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, store.stateUpdates)
}

func TestEvaluateDeployment_OutsideBuckets(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	evaluator := newTestEvaluator(store)

	for _, days := range []int{1, 2, 4, 5, 6, 8, 30} {
		dep := testDeployment()
		dep.NextDeliveryDate = dateDaysFromNow(today, days)
		dep.NotificationEmails = []string{"a@x.com"}

		sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
		require.NoError(t, err)
		assert.False(t, sent, "days=%d", days)
	}
	assert.Empty(t, store.stateUpdates)
}

func TestEvaluateDeployment_EmptyRecipientsLeavesStateUntouched(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 0)
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.False(t, sent)

	// State is untouched so a config fix later today can still send
	assert.Empty(t, store.stateUpdates)
	assert.Empty(t, dep.LastSent(models.ReminderDueToday))
	assert.Empty(t, store.audits)
}

func TestEvaluateDeployment_StatePersistedBeforeSend(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 0)
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)

	// The email transport is unconfigured, so delivery soft-failed,
	// yet the idempotency state was already persisted.
	require.Len(t, store.stateUpdates, 1)
	assert.Equal(t, "2026-09-01", store.stateUpdates[0].state[models.ReminderDueToday])

	require.Len(t, store.audits, 1)
	assert.False(t, store.audits[0].Success)
	assert.Equal(t, dispatch.ReasonSMTPNotConfigured, store.audits[0].Detail)
}

func TestEvaluateDeployment_BroadcastRoleIncluded(t *testing.T) {
	store := newFakeStore()
	store.addUser("GM", "gm@x.com", "general_manager")
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 7)
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, store.audits, 1)
	assert.ElementsMatch(t, []string{"a@x.com", "gm@x.com"}, store.audits[0].Recipients)
}

func TestEvaluateDeployment_AuditFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.auditErr = fmt.Errorf("audit table unavailable")
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 7)
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestRunDaily_ErrorIsolation(t *testing.T) {
	store := newFakeStore()
	store.productErr = fmt.Errorf("products unavailable")
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	// Due today: product lookup fails, counts as an error
	failing := testDeployment()
	failing.ID = "dep-failing"
	failing.NextDeliveryDate = dateDaysFromNow(today, 0)
	failing.NotificationEmails = []string{"a@x.com"}
	store.deployments[failing.ID] = failing

	// No delivery date: skipped, never reaches the failing lookup
	skipped := testDeployment()
	skipped.ID = "dep-skipped"
	store.deployments[skipped.ID] = skipped

	// Released: excluded from the batch entirely
	released := testDeployment()
	released.ID = "dep-released"
	released.Status = models.StatusReleased
	released.NextDeliveryDate = dateDaysFromNow(today, 0)
	store.deployments[released.ID] = released

	evaluator := newTestEvaluator(store)

	result, err := evaluator.RunDaily(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Errors)
}

func TestRunDaily_CountsSent(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	for i, days := range []int{7, 3, 0} {
		dep := testDeployment()
		dep.ID = fmt.Sprintf("dep-%d", i)
		dep.NextDeliveryDate = dateDaysFromNow(today, days)
		dep.NotificationEmails = []string{"a@x.com"}
		store.deployments[dep.ID] = dep
	}
	store.products["prod-1"] = testProduct()

	evaluator := newTestEvaluator(store)

	result, err := evaluator.RunDaily(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 0, result.Errors)
	assert.Len(t, store.stateUpdates, 3)
}

func TestEvaluateDeployment_SoftFailDoesNotCountAsSent(t *testing.T) {
	store := newFakeStore()
	today := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)

	dep := testDeployment()
	dep.NextDeliveryDate = dateDaysFromNow(today, 3)
	dep.NotificationEmails = []string{"a@x.com"}
	store.deployments[dep.ID] = dep
	store.products["prod-1"] = testProduct()

	// The metrics manager registers on the default registry, so this
	// test owns the only instance in the engine test binary.
	manager := metrics.NewManager()
	resolver := NewResolver(store, "general_manager", nil)
	evaluator := NewEvaluator(store, resolver, testDispatcher(), manager)

	sent, err := evaluator.evaluateDeployment(context.Background(), dep, today)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, store.audits, 1)
	assert.False(t, store.audits[0].Success)

	counter := manager.GetPrometheusMetrics().RemindersSentTotal.WithLabelValues(string(models.Reminder3Days))
	assert.Equal(t, 0.0, testutil.ToFloat64(counter))
}
