package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// ReasonSMTPNotConfigured is returned when the email transport has no host
const ReasonSMTPNotConfigured = "SMTP not configured"

// EmailSender handles email delivery over SMTP
type EmailSender struct {
	config         *config.SMTPConfig
	logger         *logrus.Entry
	auth           smtp.Auth
	metricsManager *metrics.Manager
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.SMTPConfig, metricsManager *metrics.Manager) *EmailSender {
	es := &EmailSender{
		config:         cfg,
		logger:         utils.ComponentLogger("email_sender"),
		metricsManager: metricsManager,
	}

	if cfg.Username != "" && cfg.Password != "" {
		es.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return es
}

// Configured reports whether the transport has enough settings to deliver
func (es *EmailSender) Configured() bool {
	return es.config.Host != ""
}

// Send delivers a notification as email. Each call is a single attempt;
// there is no internal retry. An unconfigured transport soft-fails.
func (es *EmailSender) Send(ctx context.Context, n *models.Notification) *models.ChannelResult {
	startTime := time.Now()

	if !es.Configured() {
		es.logger.WithField("subject", n.Subject).Debug("Email skipped, transport not configured")
		es.recordMetrics(false, ReasonSMTPNotConfigured, startTime)
		return &models.ChannelResult{Sent: false, Reason: ReasonSMTPNotConfigured}
	}

	if err := es.validate(n); err != nil {
		es.recordMetrics(false, "validation", startTime)
		return &models.ChannelResult{Sent: false, Reason: "Invalid email", Error: err.Error()}
	}

	message := es.buildMessage(n)

	var err error
	if es.config.UseTLS {
		err = es.sendTLS(ctx, n.Recipients, message)
	} else {
		err = es.sendPlain(n.Recipients, message)
	}

	duration := time.Since(startTime)
	if err != nil {
		es.logger.WithFields(logrus.Fields{
			"subject":  n.Subject,
			"to":       len(n.Recipients),
			"duration": duration,
			"error":    err,
		}).Error("Email delivery failed")
		es.recordMetrics(false, "transport", startTime)
		return &models.ChannelResult{Sent: false, Reason: "Delivery failed", Error: err.Error()}
	}

	es.logger.WithFields(logrus.Fields{
		"subject":  n.Subject,
		"to":       len(n.Recipients),
		"duration": duration,
	}).Info("Email sent")
	es.recordMetrics(true, "", startTime)
	return &models.ChannelResult{Sent: true}
}

func (es *EmailSender) recordMetrics(success bool, reason string, startTime time.Time) {
	if es.metricsManager == nil {
		return
	}
	es.metricsManager.GetPrometheusMetrics().RecordChannelSend(
		string(models.ChannelEmail), success, reason, time.Since(startTime))
}

// sendTLS sends email over a TLS connection
func (es *EmailSender) sendTLS(ctx context.Context, to []string, message string) error {
	addr := fmt.Sprintf("%s:%d", es.config.Host, es.config.Port)

	dialer := &tls.Dialer{
		Config: &tls.Config{ServerName: es.config.Host},
	}

	dialCtx := ctx
	if es.config.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, es.config.Timeout)
		defer cancel()
	}

	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect with TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, es.config.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if es.auth != nil {
		if err := client.Auth(es.auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(es.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	defer writer.Close()

	if _, err := writer.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// sendPlain sends email without TLS
func (es *EmailSender) sendPlain(to []string, message string) error {
	addr := fmt.Sprintf("%s:%d", es.config.Host, es.config.Port)
	return smtp.SendMail(addr, es.auth, es.config.FromEmail, to, []byte(message))
}

// buildMessage builds the raw email message
func (es *EmailSender) buildMessage(n *models.Notification) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s <%s>\r\n", es.config.FromName, es.config.FromEmail))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.Recipients, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", n.Subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	if n.HTML {
		message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	} else {
		message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	}
	message.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	message.WriteString("\r\n")
	message.WriteString(n.Body)

	return message.String()
}

// validate checks the notification before attempting delivery
func (es *EmailSender) validate(n *models.Notification) error {
	if len(n.Recipients) == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "Email recipients are required", "")
	}
	if n.Subject == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Email subject is required", "")
	}
	for _, email := range n.Recipients {
		if !isValidEmail(email) {
			return utils.NewAppError(utils.ErrCodeValidation, "Invalid email address", email)
		}
	}
	return nil
}

// isValidEmail performs basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(domain) == 0 {
		return false
	}

	if len(local) > 64 || len(domain) > 253 {
		return false
	}

	return true
}

// TestConfig sends a test email to the configured sender address
func (es *EmailSender) TestConfig(ctx context.Context) *models.ChannelResult {
	return es.Send(ctx, &models.Notification{
		Recipients:       []string{es.config.FromEmail},
		Subject:          "Control Tower - Email Configuration Test",
		Body:             "This is a test email to verify email configuration. If you receive this, email notifications are working correctly.",
		NotificationType: "config_test",
	})
}
