package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAuthFailure        EventType = "auth_failure"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
	EventBookingCreated     EventType = "booking_created"
	EventBookingCompleted   EventType = "booking_completed"
	EventSessionCancelled   EventType = "session_cancelled"
	EventSessionRefunded    EventType = "session_refunded"
	EventPayoutAvailable    EventType = "payout_available"
	EventPayoutWithdrawn    EventType = "payout_withdrawn"
	EventWalletTopUp        EventType = "wallet_topup"
	EventAvailabilityUpdate EventType = "availability_update"
)

type Event struct {
	Type      EventType
	AccountID string
	MentorID  string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Log emits a structured audit record for a financially or security
// significant event. Audit records ride the normal log stream tagged
// with audit=finance so they can be filtered downstream.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "finance").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.AccountID != "" {
		logger = logger.With().Str("account_id", event.AccountID).Logger()
	}
	if event.MentorID != "" {
		logger = logger.With().Str("mentor_id", event.MentorID).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
