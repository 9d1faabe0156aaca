package models

import (
	"time"
)

// Product represents a product record as seen by the notifier. Owner
// fields are free-text names resolved to users by the recipient
// resolver.
type Product struct {
	ID               string              `json:"id" db:"id"`
	Name             string              `json:"name" db:"name"`
	ProductOwner     string              `json:"product_owner" db:"product_owner"`
	EngineeringOwner string              `json:"engineering_owner" db:"engineering_owner"`
	DeliveryLead     string              `json:"delivery_lead" db:"delivery_lead"`
	AlertConfig      *ProductAlertConfig `json:"alert_config" db:"alert_config"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
}

// ChatWebhookURL returns the product-level chat webhook, if any
func (p *Product) ChatWebhookURL() string {
	if p == nil || p.AlertConfig == nil {
		return ""
	}
	return p.AlertConfig.GoogleChatWebhookURL
}

// User represents a user record used for name and role lookups
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
