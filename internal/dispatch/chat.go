package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// ReasonNoWebhook is returned when no chat webhook URL resolves
const ReasonNoWebhook = "No webhook configured"

// ChatSender posts card payloads to Google Chat incoming webhooks
type ChatSender struct {
	config         *config.ChatConfig
	logger         *logrus.Entry
	httpClient     *http.Client
	metricsManager *metrics.Manager
}

// ChatCard is the Google Chat cardsV2 message payload
type ChatCard struct {
	Text    string `json:"text,omitempty"`
	CardsV2 []Card `json:"cardsV2,omitempty"`
}

type Card struct {
	CardID string      `json:"cardId"`
	Card   CardContent `json:"card"`
}

type CardContent struct {
	Header   CardHeader    `json:"header"`
	Sections []CardSection `json:"sections"`
}

type CardHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

type CardSection struct {
	Widgets []CardWidget `json:"widgets"`
}

type CardWidget struct {
	DecoratedText *DecoratedText `json:"decoratedText,omitempty"`
	TextParagraph *TextParagraph `json:"textParagraph,omitempty"`
}

type DecoratedText struct {
	TopLabel string `json:"topLabel,omitempty"`
	Text     string `json:"text"`
}

type TextParagraph struct {
	Text string `json:"text"`
}

// NewChatSender creates a new chat webhook sender
func NewChatSender(cfg *config.ChatConfig, metricsManager *metrics.Manager) *ChatSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &ChatSender{
		config:         cfg,
		logger:         utils.ComponentLogger("chat_sender"),
		metricsManager: metricsManager,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// DefaultWebhookURL returns the process-wide default webhook target
func (cs *ChatSender) DefaultWebhookURL() string {
	return cs.config.DefaultWebhookURL
}

// Send posts one card message to a webhook URL. Each call is a single
// attempt; non-2xx responses and transport errors are per-channel
// failures, never pipeline exceptions.
func (cs *ChatSender) Send(ctx context.Context, webhookURL string, n *models.Notification) *models.ChannelResult {
	startTime := time.Now()

	if webhookURL == "" {
		cs.recordMetrics(false, ReasonNoWebhook, startTime)
		return &models.ChannelResult{Sent: false, Reason: ReasonNoWebhook}
	}

	payload := cs.buildCard(n)
	body, err := json.Marshal(payload)
	if err != nil {
		cs.recordMetrics(false, "marshal", startTime)
		return &models.ChannelResult{Sent: false, Reason: "Payload marshal failed", Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		cs.recordMetrics(false, "request", startTime)
		return &models.ChannelResult{Sent: false, Reason: "Request creation failed", Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if requestID, err := utils.GenerateID(); err == nil {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := cs.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		cs.logger.WithFields(logrus.Fields{
			"duration": duration,
			"error":    err,
		}).Error("Chat webhook delivery failed")
		cs.recordMetrics(false, "transport", startTime)
		return &models.ChannelResult{Sent: false, Reason: "Delivery failed", Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		detail := fmt.Sprintf("status: %d, body: %s", resp.StatusCode, string(respBody))
		cs.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"duration":    duration,
		}).Error("Chat webhook returned non-success status")
		cs.recordMetrics(false, "status", startTime)
		return &models.ChannelResult{Sent: false, Reason: "Webhook returned non-success status", Error: detail}
	}

	cs.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Info("Chat message sent")
	cs.recordMetrics(true, "", startTime)
	return &models.ChannelResult{Sent: true}
}

func (cs *ChatSender) recordMetrics(success bool, reason string, startTime time.Time) {
	if cs.metricsManager == nil {
		return
	}
	cs.metricsManager.GetPrometheusMetrics().RecordChannelSend(
		string(models.ChannelGoogleChat), success, reason, time.Since(startTime))
}

// buildCard builds the structured card payload for a notification
func (cs *ChatSender) buildCard(n *models.Notification) *ChatCard {
	return &ChatCard{
		CardsV2: []Card{
			{
				CardID: "notification-" + n.ID,
				Card: CardContent{
					Header: CardHeader{
						Title:    n.Subject,
						Subtitle: "Control Tower",
					},
					Sections: []CardSection{
						{
							Widgets: []CardWidget{
								{TextParagraph: &TextParagraph{Text: n.Body}},
								{DecoratedText: &DecoratedText{
									TopLabel: "Notification type",
									Text:     n.NotificationType,
								}},
							},
						},
					},
				},
			},
		},
	}
}

// TestWebhook posts a test message to a webhook URL
func (cs *ChatSender) TestWebhook(ctx context.Context, webhookURL string) *models.ChannelResult {
	id, _ := utils.GenerateID()
	return cs.Send(ctx, webhookURL, &models.Notification{
		ID:               id,
		Subject:          "Control Tower - Webhook Configuration Test",
		Body:             "This is a test message. If you can read this, chat notifications are working correctly.",
		NotificationType: "config_test",
	})
}
