package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/middleware"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/service"
)

type BookingHandler struct {
	booking *service.BookingService
	clients repository.ClientRepository
}

func NewBookingHandler(booking *service.BookingService, clients repository.ClientRepository) *BookingHandler {
	return &BookingHandler{
		booking: booking,
		clients: clients,
	}
}

func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequireRole(model.RoleClient))
	r.Post("/intent", h.CreateIntent)
	r.Post("/complete", h.Complete)

	return r
}

func (h *BookingHandler) clientProfile(r *http.Request) (*model.Account, *model.ClientProfile, error) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		return nil, nil, apperrors.Unauthorized("Authentication required")
	}
	client, err := h.clients.FindByAccountID(r.Context(), account.ID)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, nil, apperrors.NotFound("Client profile")
	}
	return account, client, nil
}

type bookingIntentRequest struct {
	MentorID string `json:"mentorId"`
	SlotID   string `json:"slotId"`
	Attempt  int    `json:"attempt"`
}

// POST /api/v1/bookings/intent
func (h *BookingHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	account, _, err := h.clientProfile(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req bookingIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MentorID == "" || req.SlotID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mentorId and slotId are required"})
		return
	}

	intent, err := h.booking.CreateIntent(r.Context(), req.MentorID, req.SlotID, account.Email, req.Attempt)
	if err != nil {
		log.Error().Err(err).Str("mentorId", req.MentorID).Msg("booking intent creation failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

type bookingCompleteRequest struct {
	MentorID string `json:"mentorId"`
	SlotID   string `json:"slotId"`
	Date     string `json:"date,omitempty"`
	IntentID string `json:"intentId"`
}

// POST /api/v1/bookings/complete
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	_, client, err := h.clientProfile(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req bookingCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MentorID == "" || req.SlotID == "" || req.IntentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mentorId, slotId and intentId are required"})
		return
	}

	session, err := h.booking.Complete(r.Context(), service.CompleteBookingInput{
		MentorID: req.MentorID,
		SlotID:   req.SlotID,
		Date:     req.Date,
		IntentID: req.IntentID,
		ClientID: client.ID,
	})
	if err != nil {
		log.Error().Err(err).Str("intentId", req.IntentID).Msg("booking completion failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, formatSession(*session))
}
