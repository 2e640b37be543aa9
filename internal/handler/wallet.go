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

type WalletHandler struct {
	booking       *service.BookingService
	mentors       repository.MentorRepository
	clients       repository.ClientRepository
	payments      repository.PaymentRepository
	clientWallets repository.ClientWalletRepository
	mentorWallets repository.MentorWalletRepository
}

func NewWalletHandler(
	booking *service.BookingService,
	mentors repository.MentorRepository,
	clients repository.ClientRepository,
	payments repository.PaymentRepository,
	clientWallets repository.ClientWalletRepository,
	mentorWallets repository.MentorWalletRepository,
) *WalletHandler {
	return &WalletHandler{
		booking:       booking,
		mentors:       mentors,
		clients:       clients,
		payments:      payments,
		clientWallets: clientWallets,
		mentorWallets: mentorWallets,
	}
}

func (h *WalletHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetWallet)
	r.Get("/transactions", h.ListTransactions)
	r.Post("/topup/intent", h.TopUpIntent)
	r.Post("/topup/complete", h.TopUpComplete)

	return r
}

// GET /api/v1/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	switch account.Role {
	case model.RoleMentor:
		mentor, err := h.mentors.FindByAccountID(r.Context(), account.ID)
		if err != nil || mentor == nil {
			writeError(w, apperrors.NotFound("Mentor profile"))
			return
		}
		earnings, err := h.payments.EarningsCents(r.Context(), mentor.ID)
		if err != nil {
			log.Error().Err(err).Str("mentorId", mentor.ID).Msg("failed to compute earnings")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"balanceCents":  mentor.WalletBalanceCents,
			"earningsCents": earnings,
		})

	case model.RoleClient:
		client, err := h.clients.FindByAccountID(r.Context(), account.ID)
		if err != nil || client == nil {
			writeError(w, apperrors.NotFound("Client profile"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"balanceCents": client.WalletBalanceCents,
		})

	default:
		writeError(w, apperrors.Forbidden("Unknown role"))
	}
}

// GET /api/v1/wallet/transactions
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}
	page := ParsePagination(r)

	switch account.Role {
	case model.RoleMentor:
		mentor, err := h.mentors.FindByAccountID(r.Context(), account.ID)
		if err != nil || mentor == nil {
			writeError(w, apperrors.NotFound("Mentor profile"))
			return
		}
		entries, err := h.mentorWallets.ListByMentor(r.Context(), mentor.ID, page.Limit, page.Offset)
		if err != nil {
			writeError(w, err)
			return
		}
		total, err := h.mentorWallets.CountByMentor(r.Context(), mentor.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": entries,
			"total":        total,
			"limit":        page.Limit,
			"offset":       page.Offset,
		})

	case model.RoleClient:
		client, err := h.clients.FindByAccountID(r.Context(), account.ID)
		if err != nil || client == nil {
			writeError(w, apperrors.NotFound("Client profile"))
			return
		}
		entries, err := h.clientWallets.ListByClient(r.Context(), client.ID, page.Limit, page.Offset)
		if err != nil {
			writeError(w, err)
			return
		}
		total, err := h.clientWallets.CountByClient(r.Context(), client.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": entries,
			"total":        total,
			"limit":        page.Limit,
			"offset":       page.Offset,
		})

	default:
		writeError(w, apperrors.Forbidden("Unknown role"))
	}
}

type topUpIntentRequest struct {
	AmountCents int64 `json:"amountCents"`
	Attempt     int   `json:"attempt"`
}

// POST /api/v1/wallet/topup/intent
func (h *WalletHandler) TopUpIntent(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil || account.Role != model.RoleClient {
		writeError(w, apperrors.Forbidden("Only clients can top up a wallet"))
		return
	}
	client, err := h.clients.FindByAccountID(r.Context(), account.ID)
	if err != nil || client == nil {
		writeError(w, apperrors.NotFound("Client profile"))
		return
	}

	var req topUpIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	intent, err := h.booking.TopUpIntent(r.Context(), client.ID, req.AmountCents, req.Attempt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

type topUpCompleteRequest struct {
	IntentID string `json:"intentId"`
}

// POST /api/v1/wallet/topup/complete
func (h *WalletHandler) TopUpComplete(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil || account.Role != model.RoleClient {
		writeError(w, apperrors.Forbidden("Only clients can top up a wallet"))
		return
	}
	client, err := h.clients.FindByAccountID(r.Context(), account.ID)
	if err != nil || client == nil {
		writeError(w, apperrors.NotFound("Client profile"))
		return
	}

	var req topUpCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "intentId is required"})
		return
	}

	credited, err := h.booking.TopUpComplete(r.Context(), client.ID, req.IntentID)
	if err != nil {
		log.Error().Err(err).Str("intentId", req.IntentID).Msg("wallet top-up failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"creditedCents": credited,
	})
}
