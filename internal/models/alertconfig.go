package models

// AlertEvent identifies an event-based alert type
type AlertEvent string

const (
	EventCreated       AlertEvent = "created"
	EventStatusChanged AlertEvent = "statusChanged"
	EventBlocked       AlertEvent = "blocked"
	EventReleased      AlertEvent = "released"
	EventApproaching   AlertEvent = "approaching"
	EventOverdue       AlertEvent = "overdue"
)

// AllAlertEvents lists every recognized alert event type
var AllAlertEvents = []AlertEvent{
	EventCreated,
	EventStatusChanged,
	EventBlocked,
	EventReleased,
	EventApproaching,
	EventOverdue,
}

// ValidAlertEvent reports whether s names a recognized alert event
func ValidAlertEvent(s string) bool {
	for _, e := range AllAlertEvents {
		if string(e) == s {
			return true
		}
	}
	return false
}

// GoogleChatConfig holds the per-deployment chat channel settings.
// Pointer fields distinguish "unset" from an explicit false so that
// Normalize can apply defaults exactly once.
type GoogleChatConfig struct {
	Enabled           *bool  `json:"enabled,omitempty"`
	WebhookURL        string `json:"webhook_url,omitempty"`
	UseProductWebhook *bool  `json:"use_product_webhook,omitempty"`
}

// AlertConfig controls event-based alerting for a deployment
type AlertConfig struct {
	Enabled                *bool               `json:"enabled,omitempty"`
	Events                 map[AlertEvent]bool `json:"events,omitempty"`
	NotifyProductOwners    *bool               `json:"notify_product_owners,omitempty"`
	NotifyEngineeringOwner *bool               `json:"notify_engineering_owners,omitempty"`
	NotifyDeliveryLead     *bool               `json:"notify_delivery_lead,omitempty"`
	AdditionalEmails       []string            `json:"additional_emails,omitempty"`
	GoogleChat             *GoogleChatConfig   `json:"google_chat,omitempty"`
}

// ProductAlertConfig holds the product-level alert defaults
type ProductAlertConfig struct {
	GoogleChatWebhookURL string `json:"google_chat_webhook_url,omitempty"`
}

func boolTrue() *bool {
	v := true
	return &v
}

// Normalize fills every unset field with its default. It is applied once
// when a record is loaded from storage, so read sites never re-merge
// defaults.
func (c *AlertConfig) Normalize() *AlertConfig {
	if c == nil {
		c = &AlertConfig{}
	}
	if c.Enabled == nil {
		c.Enabled = boolTrue()
	}
	if c.Events == nil {
		c.Events = make(map[AlertEvent]bool)
	}
	for _, event := range AllAlertEvents {
		if _, ok := c.Events[event]; !ok {
			c.Events[event] = true
		}
	}
	if c.NotifyProductOwners == nil {
		c.NotifyProductOwners = boolTrue()
	}
	if c.NotifyEngineeringOwner == nil {
		c.NotifyEngineeringOwner = boolTrue()
	}
	if c.NotifyDeliveryLead == nil {
		c.NotifyDeliveryLead = boolTrue()
	}
	if c.AdditionalEmails == nil {
		c.AdditionalEmails = []string{}
	}
	if c.GoogleChat == nil {
		c.GoogleChat = &GoogleChatConfig{}
	}
	if c.GoogleChat.Enabled == nil {
		c.GoogleChat.Enabled = boolTrue()
	}
	if c.GoogleChat.UseProductWebhook == nil {
		c.GoogleChat.UseProductWebhook = boolTrue()
	}
	return c
}

// AlertsEnabled reports the master switch after normalization
func (c *AlertConfig) AlertsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// EventEnabled reports whether a specific event type should alert
func (c *AlertConfig) EventEnabled(event AlertEvent) bool {
	if c == nil || c.Events == nil {
		return true
	}
	enabled, ok := c.Events[event]
	if !ok {
		return true
	}
	return enabled
}
