package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/models"
)

func newTestChatSender() *ChatSender {
	return NewChatSender(&config.ChatConfig{Timeout: 2 * time.Second}, nil)
}

func testNotification() *models.Notification {
	return &models.Notification{
		ID:               "n-1",
		DeploymentID:     "dep-1",
		Subject:          "[Deployment] Released: Billing Platform",
		Body:             "Product: Billing Platform",
		NotificationType: "released",
	}
}

func TestChatSender_SendSuccess(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := newTestChatSender()

	result := sender.Send(context.Background(), server.URL, testNotification())
	require.True(t, result.Sent)
	assert.Empty(t, result.Error)
	assert.Equal(t, "application/json; charset=UTF-8", gotContentType)

	var card ChatCard
	require.NoError(t, json.Unmarshal(gotBody, &card))
	require.Len(t, card.CardsV2, 1)
	assert.Equal(t, "notification-n-1", card.CardsV2[0].CardID)
	assert.Equal(t, "[Deployment] Released: Billing Platform", card.CardsV2[0].Card.Header.Title)
	assert.Equal(t, "Control Tower", card.CardsV2[0].Card.Header.Subtitle)
}

func TestChatSender_SendNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook token", http.StatusForbidden)
	}))
	defer server.Close()

	sender := newTestChatSender()

	result := sender.Send(context.Background(), server.URL, testNotification())
	assert.False(t, result.Sent)
	assert.Equal(t, "Webhook returned non-success status", result.Reason)
	assert.Contains(t, result.Error, "status: 403")
	assert.Contains(t, result.Error, "invalid webhook token")
}

func TestChatSender_SendNoURL(t *testing.T) {
	sender := newTestChatSender()

	result := sender.Send(context.Background(), "", testNotification())
	assert.False(t, result.Sent)
	assert.Equal(t, ReasonNoWebhook, result.Reason)
}

func TestChatSender_SendTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	sender := newTestChatSender()

	result := sender.Send(context.Background(), url, testNotification())
	assert.False(t, result.Sent)
	assert.Equal(t, "Delivery failed", result.Reason)
	assert.NotEmpty(t, result.Error)
}

func TestChatSender_TestWebhook(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := newTestChatSender()

	result := sender.TestWebhook(context.Background(), server.URL)
	require.True(t, result.Sent)

	var card ChatCard
	require.NoError(t, json.Unmarshal(gotBody, &card))
	require.Len(t, card.CardsV2, 1)
	assert.Equal(t, "Control Tower - Webhook Configuration Test", card.CardsV2[0].Card.Header.Title)
}

func TestDispatcher_StatsTrackChatOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(&config.SMTPConfig{}, &config.ChatConfig{Timeout: 2 * time.Second}, nil)

	dispatcher.SendChat(context.Background(), server.URL, testNotification())
	dispatcher.SendChat(context.Background(), "", testNotification())

	stats := dispatcher.GetStats()
	assert.Equal(t, uint64(1), stats.ChatsSent)
	assert.Equal(t, uint64(1), stats.ChatsFailed)
}
