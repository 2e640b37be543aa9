package handler

import (
	"net/http"
	"time"

	"github.com/healthy-mentoring/server-go/internal/httputil"
	"github.com/healthy-mentoring/server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSession(s model.Session) map[string]any {
	return map[string]any{
		"id":         s.ID,
		"mentorId":   s.MentorID,
		"attendeeId": s.AttendeeID,
		"startAt":    s.StartAt.Format(time.RFC3339),
		"endAt":      s.EndAt.Format(time.RFC3339),
		"status":     s.Status,
		"priceCents": s.PriceCents,
		"refundedAt": formatTime(s.RefundedAt),
		"paidOutAt":  formatTime(s.PaidOutAt),
	}
}
