package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/controltower/notifier/internal/models"
)

// Subject templates are fixed; downstream audit tooling matches on them.

// ReminderSubject returns the verbatim subject line for a reminder class
func ReminderSubject(class models.ReminderClass, productName string, daysOverdue int) string {
	switch class {
	case models.Reminder7Days:
		return fmt.Sprintf("[Reminder] Deployment in 7 days: %s", productName)
	case models.Reminder3Days:
		return fmt.Sprintf("[Reminder] Deployment in 3 days: %s", productName)
	case models.ReminderDueToday:
		return fmt.Sprintf("[ACTION REQUIRED] Deployment Due Today: %s", productName)
	case models.ReminderOverdue:
		return fmt.Sprintf("[OVERDUE] Deployment %d days overdue: %s", daysOverdue, productName)
	}
	return productName
}

// reminderBanner returns the fixed urgency banner for a reminder class
func reminderBanner(class models.ReminderClass) string {
	switch class {
	case models.Reminder7Days:
		return "Upcoming deployment in 7 days."
	case models.Reminder3Days:
		return "Upcoming deployment in 3 days. Please confirm readiness."
	case models.ReminderDueToday:
		return "This deployment is due TODAY. Immediate action required."
	case models.ReminderOverdue:
		return "This deployment is OVERDUE. Please update the delivery date or status."
	}
	return ""
}

// AlertSubject returns the subject line for an event-based alert
func AlertSubject(event models.AlertEvent, productName string) string {
	switch event {
	case models.EventCreated:
		return fmt.Sprintf("[Deployment] New deployment created: %s", productName)
	case models.EventStatusChanged:
		return fmt.Sprintf("[Deployment] Status changed: %s", productName)
	case models.EventBlocked:
		return fmt.Sprintf("[Deployment] BLOCKED: %s", productName)
	case models.EventReleased:
		return fmt.Sprintf("[Deployment] Released: %s", productName)
	case models.EventApproaching:
		return fmt.Sprintf("[Deployment] Delivery date approaching: %s", productName)
	case models.EventOverdue:
		return fmt.Sprintf("[Deployment] Delivery date passed: %s", productName)
	}
	return productName
}

// ReminderBody builds the deterministic reminder body for a deployment
func ReminderBody(class models.ReminderClass, dep *models.Deployment, product *models.Product) string {
	var b strings.Builder

	b.WriteString(reminderBanner(class))
	b.WriteString("\n\n")
	writeDeploymentDetails(&b, dep, product)

	return b.String()
}

// AlertBody builds the body for an event-based alert
func AlertBody(event models.AlertEvent, dep *models.Deployment, product *models.Product, eventData map[string]string) string {
	var b strings.Builder

	switch event {
	case models.EventStatusChanged:
		if from, ok := eventData["from"]; ok {
			fmt.Fprintf(&b, "Status changed from %s to %s.\n\n", from, eventData["to"])
		}
	case models.EventBlocked:
		if reason, ok := eventData["reason"]; ok {
			fmt.Fprintf(&b, "Blocked: %s\n\n", reason)
		}
	}

	writeDeploymentDetails(&b, dep, product)
	return b.String()
}

func writeDeploymentDetails(b *strings.Builder, dep *models.Deployment, product *models.Product) {
	productName := ""
	if product != nil {
		productName = product.Name
	}

	fmt.Fprintf(b, "Product: %s\n", productName)
	fmt.Fprintf(b, "Client: %s\n", dep.ClientName)
	fmt.Fprintf(b, "Type: %s\n", dep.DeploymentType)
	fmt.Fprintf(b, "Environment: %s\n", dep.Environment)
	if dep.NextDeliveryDate != nil {
		fmt.Fprintf(b, "Delivery date: %s\n", dep.NextDeliveryDate.Format("2006-01-02"))
	}
	fmt.Fprintf(b, "Status: %s\n", dep.Status)
	fmt.Fprintf(b, "Owner: %s\n", dep.OwnerName)
	fmt.Fprintf(b, "Delivery person: %s\n", dep.DeliveryPerson)
}

// DaysUntil returns the whole calendar days from today until target.
// Both operands are truncated to local midnight first, so the result is
// exact and DST-naive.
func DaysUntil(today, target time.Time) int {
	t0 := truncateToDay(today)
	t1 := truncateToDay(target)
	return int(t1.Sub(t0).Hours() / 24)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ISODate formats a date as the yyyy-mm-dd idempotency key
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ClassifyReminder maps a days-until value to a reminder class.
// First match wins; values outside the buckets trigger nothing.
func ClassifyReminder(daysUntil int) (models.ReminderClass, bool) {
	switch {
	case daysUntil == 7:
		return models.Reminder7Days, true
	case daysUntil == 3:
		return models.Reminder3Days, true
	case daysUntil == 0:
		return models.ReminderDueToday, true
	case daysUntil < 0:
		return models.ReminderOverdue, true
	}
	return "", false
}
