package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// Dispatcher owns the delivery transports. All transport settings are
// passed in at construction time; nothing reads ambient process state
// mid-operation.
type Dispatcher struct {
	emailSender *EmailSender
	chatSender  *ChatSender
	logger      *logrus.Logger

	mu    sync.Mutex
	stats DispatchStats
}

// DispatchStats tracks dispatcher delivery counters
type DispatchStats struct {
	EmailsSent    uint64     `json:"emails_sent"`
	EmailsFailed  uint64     `json:"emails_failed"`
	ChatsSent     uint64     `json:"chats_sent"`
	ChatsFailed   uint64     `json:"chats_failed"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
}

// NewDispatcher creates a dispatcher with both transports configured
func NewDispatcher(smtpCfg *config.SMTPConfig, chatCfg *config.ChatConfig, metricsManager *metrics.Manager) *Dispatcher {
	return &Dispatcher{
		emailSender: NewEmailSender(smtpCfg, metricsManager),
		chatSender:  NewChatSender(chatCfg, metricsManager),
		logger:      utils.GetLogger(),
	}
}

// SendEmail delivers a notification over SMTP. A missing SMTP
// configuration is a soft skip, never an error.
func (d *Dispatcher) SendEmail(ctx context.Context, n *models.Notification) *models.ChannelResult {
	result := d.emailSender.Send(ctx, n)
	d.record(string(models.ChannelEmail), result)
	return result
}

// SendChat delivers a card payload to a Google Chat webhook
func (d *Dispatcher) SendChat(ctx context.Context, webhookURL string, n *models.Notification) *models.ChannelResult {
	result := d.chatSender.Send(ctx, webhookURL, n)
	d.record(string(models.ChannelGoogleChat), result)
	return result
}

// EmailConfigured reports whether the email transport can deliver
func (d *Dispatcher) EmailConfigured() bool {
	return d.emailSender.Configured()
}

// GetStats returns a copy of the dispatcher counters
func (d *Dispatcher) GetStats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) record(channel string, result *models.ChannelResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch channel {
	case string(models.ChannelEmail):
		if result.Sent {
			d.stats.EmailsSent++
		} else {
			d.stats.EmailsFailed++
		}
	case string(models.ChannelGoogleChat):
		if result.Sent {
			d.stats.ChatsSent++
		} else {
			d.stats.ChatsFailed++
		}
	}

	if !result.Sent && result.Error != "" {
		d.stats.LastError = result.Error
		now := time.Now()
		d.stats.LastErrorTime = &now
	}
}
