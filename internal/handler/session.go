package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/middleware"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/service"
	"github.com/healthy-mentoring/server-go/internal/util"
)

type SessionHandler struct {
	settlement *service.SettlementService
	sessions   repository.SessionRepository
	mentors    repository.MentorRepository
	clients    repository.ClientRepository
}

func NewSessionHandler(
	settlement *service.SettlementService,
	sessions repository.SessionRepository,
	mentors repository.MentorRepository,
	clients repository.ClientRepository,
) *SessionHandler {
	return &SessionHandler{
		settlement: settlement,
		sessions:   sessions,
		mentors:    mentors,
		clients:    clients,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListSessions)
	r.Post("/{sessionID}/cancel", h.Cancel)
	r.Post("/{sessionID}/decline", h.Decline)
	r.Post("/{sessionID}/refund", h.Refund)
	r.Post("/{sessionID}/withdraw", h.Withdraw)

	return r
}

// GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}
	page := ParsePagination(r)

	var (
		sessions []model.Session
		err      error
	)
	switch account.Role {
	case model.RoleMentor:
		mentor, ferr := h.mentors.FindByAccountID(r.Context(), account.ID)
		if ferr != nil || mentor == nil {
			writeError(w, apperrors.NotFound("Mentor profile"))
			return
		}
		sessions, err = h.sessions.ListByMentor(r.Context(), mentor.ID, page.Limit, page.Offset)
	case model.RoleClient:
		client, ferr := h.clients.FindByAccountID(r.Context(), account.ID)
		if ferr != nil || client == nil {
			writeError(w, apperrors.NotFound("Client profile"))
			return
		}
		sessions, err = h.sessions.ListByAttendee(r.Context(), client.ID, page.Limit, page.Offset)
	default:
		writeError(w, apperrors.Forbidden("Unknown role"))
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, formatSession(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": items,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

func sessionIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(id) {
		return "", apperrors.InvalidInput("sessionID", "must be a UUID")
	}
	return id, nil
}

// Settlement endpoints act on the addressed session directly, so each
// handler verifies the caller owns a side of it before invoking the
// settlement service.

func (h *SessionHandler) loadSession(r *http.Request, id string) (*model.Session, error) {
	session, err := h.sessions.FindByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// requireAttendee checks the authenticated account is the client attending
// the session.
func (h *SessionHandler) requireAttendee(r *http.Request, session *model.Session) error {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		return apperrors.Unauthorized("Authentication required")
	}
	if account.Role != model.RoleClient {
		return apperrors.Forbidden("Only the session's client can do this")
	}
	client, err := h.clients.FindByAccountID(r.Context(), account.ID)
	if err != nil || client == nil {
		return apperrors.NotFound("Client profile")
	}
	if session.AttendeeID == nil || *session.AttendeeID != client.ID {
		return apperrors.Forbidden("Session belongs to another client")
	}
	return nil
}

// requireParty accepts either side of the session: the attending client or
// the mentor who hosts it.
func (h *SessionHandler) requireParty(r *http.Request, session *model.Session) error {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		return apperrors.Unauthorized("Authentication required")
	}
	if account.Role == model.RoleMentor {
		mentor, err := h.mentors.FindByAccountID(r.Context(), account.ID)
		if err != nil || mentor == nil {
			return apperrors.NotFound("Mentor profile")
		}
		if session.MentorID != mentor.ID {
			return apperrors.Forbidden("Session belongs to another mentor")
		}
		return nil
	}
	return h.requireAttendee(r, session)
}

// POST /api/v1/sessions/{sessionID}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := h.loadSession(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.requireParty(r, session); err != nil {
		writeError(w, err)
		return
	}

	refunded, err := h.settlement.CancelWithRefund(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("cancellation rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        model.SessionStatusCancelled,
		"refundedCents": refunded,
	})
}

// POST /api/v1/sessions/{sessionID}/decline
func (h *SessionHandler) Decline(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := h.loadSession(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.requireAttendee(r, session); err != nil {
		writeError(w, err)
		return
	}

	if err := h.settlement.DeclineInvitation(r.Context(), id); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("decline rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": model.SessionStatusCancelled,
	})
}

// POST /api/v1/sessions/{sessionID}/refund
func (h *SessionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := h.loadSession(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.requireAttendee(r, session); err != nil {
		writeError(w, err)
		return
	}

	refunded, err := h.settlement.RefundCompleted(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("refund rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        model.SessionStatusRefunded,
		"refundedCents": refunded,
	})
}

// POST /api/v1/sessions/{sessionID}/withdraw
func (h *SessionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil || account.Role != model.RoleMentor {
		writeError(w, apperrors.Forbidden("Only mentors can withdraw payouts"))
		return
	}
	mentor, err := h.mentors.FindByAccountID(r.Context(), account.ID)
	if err != nil || mentor == nil {
		writeError(w, apperrors.NotFound("Mentor profile"))
		return
	}

	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	withdrawn, err := h.settlement.Withdraw(r.Context(), id, mentor.ID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("withdrawal rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         model.SessionStatusPaidOut,
		"withdrawnCents": withdrawn,
	})
}
