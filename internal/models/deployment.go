package models

import (
	"time"
)

// DeploymentStatus defines the lifecycle state of a deployment
type DeploymentStatus string

const (
	StatusNotStarted DeploymentStatus = "Not Started"
	StatusInProgress DeploymentStatus = "In Progress"
	StatusBlocked    DeploymentStatus = "Blocked"
	StatusReleased   DeploymentStatus = "Released"
)

// ReminderClass identifies a time-to-delivery reminder bucket
type ReminderClass string

const (
	Reminder7Days    ReminderClass = "7_days"
	Reminder3Days    ReminderClass = "3_days"
	ReminderDueToday ReminderClass = "due_today"
	ReminderOverdue  ReminderClass = "overdue"
)

// Deployment represents a tracked deployment as seen by the notifier.
// LastNotificationSent is the only field this service mutates: it maps a
// reminder class to the ISO date (yyyy-mm-dd) that class last fired.
type Deployment struct {
	ID                   string                   `json:"id" db:"id"`
	ProductID            string                   `json:"product_id" db:"product_id"`
	ClientName           string                   `json:"client_name" db:"client_name"`
	DeploymentType       string                   `json:"deployment_type" db:"deployment_type"`
	Environment          string                   `json:"environment" db:"environment"`
	Status               DeploymentStatus         `json:"status" db:"status"`
	NextDeliveryDate     *time.Time               `json:"next_delivery_date,omitempty" db:"next_delivery_date"`
	NotificationEmails   []string                 `json:"notification_emails" db:"notification_emails"`
	OwnerName            string                   `json:"owner_name" db:"owner_name"`
	DeliveryPerson       string                   `json:"delivery_person" db:"delivery_person"`
	AlertConfig          *AlertConfig             `json:"alert_config" db:"alert_config"`
	LastNotificationSent map[ReminderClass]string `json:"last_notification_sent" db:"last_notification_sent"`
	CreatedAt            time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at" db:"updated_at"`
}

// DeploymentFilter for querying deployments
type DeploymentFilter struct {
	ProductID       *string           `json:"product_id,omitempty"`
	Status          *DeploymentStatus `json:"status,omitempty"`
	ExcludeReleased bool              `json:"exclude_released,omitempty"`
	Limit           int               `json:"limit,omitempty"`
	Offset          int               `json:"offset,omitempty"`
}

// ValidDeploymentStatus reports whether s names a recognized status
func ValidDeploymentStatus(s string) bool {
	switch DeploymentStatus(s) {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusReleased:
		return true
	}
	return false
}

// IsReleased reports whether the deployment has reached its terminal state
func (d *Deployment) IsReleased() bool {
	return d.Status == StatusReleased
}

// LastSent returns the recorded send date for a reminder class
func (d *Deployment) LastSent(class ReminderClass) string {
	if d.LastNotificationSent == nil {
		return ""
	}
	return d.LastNotificationSent[class]
}

// MarkSent records todayISO as the send date for a reminder class
func (d *Deployment) MarkSent(class ReminderClass, todayISO string) {
	if d.LastNotificationSent == nil {
		d.LastNotificationSent = make(map[ReminderClass]string)
	}
	d.LastNotificationSent[class] = todayISO
}
