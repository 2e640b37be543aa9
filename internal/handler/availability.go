package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/middleware"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/service"
)

type AvailabilityHandler struct {
	availability *service.AvailabilityService
	mentors      repository.MentorRepository
}

func NewAvailabilityHandler(availability *service.AvailabilityService, mentors repository.MentorRepository) *AvailabilityHandler {
	return &AvailabilityHandler{
		availability: availability,
		mentors:      mentors,
	}
}

func (h *AvailabilityHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequireRole(model.RoleMentor))
	r.Get("/", h.GetAvailability)
	r.Put("/", h.SaveAvailability)
	r.Put("/session-length", h.ChangeSessionLength)

	return r
}

// mentorProfile resolves the mentor profile behind the authenticated
// account. The role guard already ensured the account is a mentor.
func (h *AvailabilityHandler) mentorProfile(r *http.Request) (*model.MentorProfile, error) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	mentor, err := h.mentors.FindByAccountID(r.Context(), account.ID)
	if err != nil {
		return nil, err
	}
	if mentor == nil {
		return nil, apperrors.NotFound("Mentor profile")
	}
	return mentor, nil
}

// GET /api/v1/availability
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	mentor, err := h.mentorProfile(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oneTimeSlots":         mentor.OneTimeSlots,
		"recurringSlots":       mentor.RecurringSlots,
		"sessionLengthMinutes": mentor.SessionLengthMinutes,
		"hasCollisions":        mentor.HasCollisions,
		"timezone":             mentor.Timezone,
	})
}

type sessionChangeRequest struct {
	Op         string    `json:"op"`
	SessionID  string    `json:"sessionId,omitempty"`
	AttendeeID *string   `json:"attendeeId,omitempty"`
	StartAt    time.Time `json:"startAt"`
	EndAt      time.Time `json:"endAt"`
	PriceCents *int64    `json:"priceCents,omitempty"`
}

type slotConversionRequest struct {
	RuleID string    `json:"ruleId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type saveAvailabilityRequest struct {
	EditedDates        []string                `json:"editedDates"`
	OneTimeSlots       []model.OneTimeSlot     `json:"oneTimeSlots"`
	RecurringSlots     []model.RecurringSlot   `json:"recurringSlots"`
	DeleteRecurringIDs []string                `json:"deleteRecurringIds"`
	Conversions        []slotConversionRequest `json:"conversions"`
	Sessions           []sessionChangeRequest  `json:"sessions"`
}

// PUT /api/v1/availability
func (h *AvailabilityHandler) SaveAvailability(w http.ResponseWriter, r *http.Request) {
	mentor, err := h.mentorProfile(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req saveAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	for _, d := range req.EditedDates {
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			writeError(w, apperrors.InvalidInput("editedDates", "invalid date "+d))
			return
		}
	}

	input := service.SaveAvailabilityInput{
		EditedDates:        req.EditedDates,
		OneTimeSlots:       req.OneTimeSlots,
		RecurringSlots:     req.RecurringSlots,
		DeleteRecurringIDs: req.DeleteRecurringIDs,
		ChangedBy:          mentor.AccountID,
	}
	for _, conv := range req.Conversions {
		input.Conversions = append(input.Conversions, service.SlotConversion{
			RuleID: conv.RuleID,
			Start:  conv.Start,
			End:    conv.End,
		})
	}
	for _, change := range req.Sessions {
		input.SessionChanges = append(input.SessionChanges, service.SessionChange{
			Op:         service.SessionChangeOp(change.Op),
			SessionID:  change.SessionID,
			AttendeeID: change.AttendeeID,
			StartAt:    change.StartAt,
			EndAt:      change.EndAt,
			PriceCents: change.PriceCents,
		})
	}

	result, err := h.availability.Save(r.Context(), mentor.ID, input)
	if err != nil {
		log.Error().Err(err).Str("mentorId", mentor.ID).Msg("availability save failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type sessionLengthRequest struct {
	SessionLengthMinutes int `json:"sessionLengthMinutes"`
}

// PUT /api/v1/availability/session-length
func (h *AvailabilityHandler) ChangeSessionLength(w http.ResponseWriter, r *http.Request) {
	mentor, err := h.mentorProfile(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sessionLengthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.availability.ChangeSessionLength(r.Context(), mentor.ID, req.SessionLengthMinutes)
	if err != nil {
		log.Error().Err(err).Str("mentorId", mentor.ID).Msg("session length change failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
