package models

import (
	"time"
)

// NotificationChannel defines the delivery channel of a notification
type NotificationChannel string

const (
	ChannelEmail      NotificationChannel = "email"
	ChannelGoogleChat NotificationChannel = "google_chat"
)

// Notification represents a notification handed to the dispatcher
type Notification struct {
	ID               string              `json:"id"`
	DeploymentID     string              `json:"deployment_id"`
	Recipients       []string            `json:"recipients"`
	Subject          string              `json:"subject"`
	Body             string              `json:"body"`
	HTML             bool                `json:"html"`
	Channel          NotificationChannel `json:"channel"`
	NotificationType string              `json:"notification_type"`
	SentAt           time.Time           `json:"sent_at"`
}

// AuditEntry records a notification outcome for a deployment
type AuditEntry struct {
	ID               string    `json:"id" db:"id"`
	DeploymentID     string    `json:"deployment_id" db:"deployment_id"`
	NotificationType string    `json:"notification_type" db:"notification_type"`
	Channel          string    `json:"channel" db:"channel"`
	Recipients       []string  `json:"recipients" db:"recipients"`
	Subject          string    `json:"subject" db:"subject"`
	Success          bool      `json:"success" db:"success"`
	Detail           string    `json:"detail,omitempty" db:"detail"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// ChannelResult reports the outcome of one delivery channel
type ChannelResult struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AlertResult is the outcome of an event-based alert pipeline run.
// Sent means the pipeline ran; per-channel success is in Results.
type AlertResult struct {
	Sent    bool                      `json:"sent"`
	Reason  string                    `json:"reason,omitempty"`
	Results map[string]*ChannelResult `json:"results,omitempty"`
}

// RunResult summarizes one daily reminder batch
type RunResult struct {
	Processed int           `json:"processed"`
	Sent      int           `json:"sent"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
