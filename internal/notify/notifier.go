// Package notify delivers best-effort event notifications to an external
// webhook. Delivery is fire-and-forget: a slow or failing endpoint must
// never block or fail the financial operation that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	SessionInvited   EventType = "session_invited"
	SessionConfirmed EventType = "session_confirmed"
	SessionCancelled EventType = "session_cancelled"
	SessionDeclined  EventType = "session_declined"
	SessionRefunded  EventType = "session_refunded"
	SessionChanged   EventType = "session_changed"
)

type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	MentorID  string    `json:"mentorId,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes an event. Implementations must return promptly.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

const deliveryTimeout = 5 * time.Second

// WebhookNotifier POSTs events as JSON to a configured endpoint.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: deliveryTimeout,
		},
	}
}

// Notify delivers the event in the background. Failures are logged and
// dropped; there is no retry.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	go n.deliver(event)
}

func (n *WebhookNotifier) deliver(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("eventType", string(event.Type)).Msg("failed to encode notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("failed to build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("eventType", string(event.Type)).Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("eventType", string(event.Type)).
			Msg("notification endpoint returned error")
	}
}

// NopNotifier discards all events. Used when no webhook is configured
// and in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, event Event) {}
