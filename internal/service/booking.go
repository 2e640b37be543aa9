package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/healthy-mentoring/server-go/internal/audit"
	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/gateway"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/notify"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/schedule"
)

const topUpPurpose = "wallet_topup"

// BookingService runs the two-phase booking flow: an intent is created at
// the payment gateway first, the client completes the charge on their
// side, then Complete verifies the charge and atomically consumes the
// slot and creates the confirmed session. It also handles wallet top-ups,
// which reuse the same intent machinery without a session or commission.
type BookingService struct {
	db       TxRunner
	mentors  repository.MentorRepository
	clients  repository.ClientRepository
	sessions repository.SessionRepository
	payments repository.PaymentRepository
	wallet   *WalletService
	gateway  gateway.PaymentGateway
	notifier notify.Notifier
	zones    schedule.ZoneResolver

	commissionPercent float64
	currency          string
	now               func() time.Time
}

func NewBookingService(
	db TxRunner,
	mentors repository.MentorRepository,
	clients repository.ClientRepository,
	sessions repository.SessionRepository,
	payments repository.PaymentRepository,
	wallet *WalletService,
	paymentGateway gateway.PaymentGateway,
	notifier notify.Notifier,
	zones schedule.ZoneResolver,
	commissionPercent float64,
) *BookingService {
	return &BookingService{
		db:                db,
		mentors:           mentors,
		clients:           clients,
		sessions:          sessions,
		payments:          payments,
		wallet:            wallet,
		gateway:           paymentGateway,
		notifier:          notifier,
		zones:             zones,
		commissionPercent: commissionPercent,
		currency:          "usd",
		now:               time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

func (s *BookingService) mentorRepo(tx *sqlx.Tx) repository.MentorRepository {
	if tx != nil {
		return s.mentors.WithTx(tx)
	}
	return s.mentors
}

func (s *BookingService) sessionRepo(tx *sqlx.Tx) repository.SessionRepository {
	if tx != nil {
		return s.sessions.WithTx(tx)
	}
	return s.sessions
}

func (s *BookingService) paymentRepo(tx *sqlx.Tx) repository.PaymentRepository {
	if tx != nil {
		return s.payments.WithTx(tx)
	}
	return s.payments
}

// commissionCents is the platform's cut, rounded to the nearest cent. It
// is computed once at payment creation and recorded on the payment row,
// immutable from then on.
func (s *BookingService) commissionCents(amountCents int64) int64 {
	return int64(math.Round(float64(amountCents) * s.commissionPercent / 100))
}

type BookingIntent struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
}

// CreateIntent opens a payment intent for booking one slot of a mentor.
// The idempotency key is derived from the booking coordinates plus an
// attempt counter, so retrying a failed checkout reuses the processor-side
// intent instead of double-charging.
func (s *BookingService) CreateIntent(ctx context.Context, mentorID, slotID, clientEmail string, attempt int) (*BookingIntent, error) {
	mentor, err := s.mentors.FindByID(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if mentor == nil {
		return nil, apperrors.NotFound("Mentor")
	}
	amount := mentor.PricePerSessionCents
	if amount <= 0 {
		return nil, apperrors.ValidationError("Mentor has no session price configured")
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountCents:    amount,
		Currency:       s.currency,
		IdempotencyKey: fmt.Sprintf("booking:%s:%s:%s:%d", mentorID, slotID, clientEmail, attempt),
		Metadata: map[string]string{
			"mentor_id": mentorID,
			"slot_id":   slotID,
		},
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventBookingCreated,
		MentorID: mentorID,
		Details:  map[string]interface{}{"intent_id": intent.IntentID, "amount_cents": amount},
	})
	return &BookingIntent{
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  amount,
		Currency:     s.currency,
	}, nil
}

type CompleteBookingInput struct {
	MentorID string
	SlotID   string
	// Date is the local occurrence date, required when SlotID names a
	// recurring rule.
	Date     string
	IntentID string
	ClientID string
}

// Complete verifies the charge and books the slot. Slot consumption and
// session creation happen in one transaction: a one-time slot is marked
// booked, a recurring occurrence gets its date appended to the rule's
// booked dates. Completing the same intent twice returns the original
// session.
func (s *BookingService) Complete(ctx context.Context, in CompleteBookingInput) (*model.Session, error) {
	now := s.now()
	var booked *model.Session

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		mentor, err := s.mentorRepo(tx).FindByIDForUpdate(ctx, in.MentorID)
		if err != nil {
			return err
		}
		if mentor == nil {
			return apperrors.NotFound("Mentor")
		}

		existing, err := s.paymentRepo(tx).FindByIntentID(ctx, in.IntentID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.SessionID == nil {
				return apperrors.AlreadyExists("Payment")
			}
			booked, err = s.sessionRepo(tx).FindByID(ctx, *existing.SessionID)
			return err
		}

		loc, err := s.zones.Resolve(mentor.Timezone)
		if err != nil {
			return apperrors.InvalidInput("timezone", "unknown timezone "+mentor.Timezone)
		}

		startAt, endAt, oneTime, recurring, err := consumeSlot(mentor, in.SlotID, in.Date, loc, now)
		if err != nil {
			return err
		}

		amount := mentor.PricePerSessionCents
		intent, err := s.gateway.VerifyIntentSucceeded(ctx, in.IntentID, amount, in.MentorID)
		if err != nil {
			return err
		}

		session, err := s.sessionRepo(tx).Create(ctx, model.CreateSessionParams{
			MentorID:   in.MentorID,
			AttendeeID: &in.ClientID,
			StartAt:    startAt,
			EndAt:      endAt,
			Status:     model.SessionStatusConfirmed,
			PriceCents: &amount,
		})
		if err != nil {
			return err
		}

		payment, err := s.paymentRepo(tx).Create(ctx, model.CreatePaymentParams{
			IntentID:                intent.IntentID,
			MentorID:                &in.MentorID,
			ClientID:                &in.ClientID,
			SessionID:               &session.ID,
			AmountCents:             intent.AmountCents,
			Currency:                intent.Currency,
			PlatformCommissionCents: s.commissionCents(intent.AmountCents),
			Status:                  model.PaymentStatusSucceeded,
		})
		if err != nil {
			return err
		}
		if err := s.sessionRepo(tx).SetPayment(ctx, session.ID, payment.ID); err != nil {
			return err
		}

		active, err := s.sessionRepo(tx).FindActiveByMentor(ctx, mentor.ID)
		if err != nil {
			return err
		}
		hasCollisions := schedule.HasCollision(schedule.Input{
			OneTimeSlots:   oneTime,
			RecurringSlots: recurring,
			LengthMinutes:  mentor.SessionLengthMinutes,
			Location:       loc,
			Sessions:       sessionIntervals(active, loc),
			Now:            now,
		})
		if err := s.mentorRepo(tx).UpdateAvailability(ctx, mentor.ID, oneTime, recurring, hasCollisions); err != nil {
			return err
		}

		session.PaymentID = &payment.ID
		booked = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventBookingCompleted,
		MentorID:  in.MentorID,
		SessionID: booked.ID,
		Details:   map[string]interface{}{"intent_id": in.IntentID},
	})
	s.notifier.Notify(ctx, notify.Event{
		Type:      notify.SessionConfirmed,
		SessionID: booked.ID,
		MentorID:  in.MentorID,
		ClientID:  in.ClientID,
	})
	log.Info().
		Str("sessionId", booked.ID).
		Str("mentorId", in.MentorID).
		Str("intentId", in.IntentID).
		Msg("booking completed")
	return booked, nil
}

// consumeSlot marks the addressed slot as booked and returns the session
// interval it defines plus the updated slot collections. The slot must
// exist, be unbooked and lie in the future. A recurring rule only books on
// a date the rule actually generates an occurrence for.
func consumeSlot(mentor *model.MentorProfile, slotID, date string, loc *time.Location, now time.Time) (time.Time, time.Time, model.OneTimeSlots, model.RecurringSlots, error) {
	var zero time.Time

	oneTime := make(model.OneTimeSlots, len(mentor.OneTimeSlots))
	copy(oneTime, mentor.OneTimeSlots)
	for i, slot := range oneTime {
		if slot.ID != slotID {
			continue
		}
		if slot.Booked {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Slot is already booked")
		}
		if !slot.Start.After(now) {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Slot is in the past")
		}
		oneTime[i].Booked = true
		return slot.Start, slot.End, oneTime, mentor.RecurringSlots, nil
	}

	recurring := make(model.RecurringSlots, len(mentor.RecurringSlots))
	copy(recurring, mentor.RecurringSlots)
	for i, rule := range recurring {
		if rule.ID != slotID {
			continue
		}
		if date == "" {
			return zero, zero, nil, nil, apperrors.MissingRequired("date")
		}
		if rule.ExcludesDate(date) {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Occurrence is not available on that date")
		}
		day, err := time.ParseInLocation(model.DateLayout, date, loc)
		if err != nil {
			return zero, zero, nil, nil, apperrors.InvalidInput("date", "invalid date "+date)
		}
		occurs, err := schedule.OccursOn(rule, day)
		if err != nil || !occurs {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Rule has no occurrence on that date")
		}
		startClock, err := time.Parse(model.TimeLayout, rule.StartTime)
		if err != nil {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Rule has an invalid start time")
		}
		endClock, err := time.Parse(model.TimeLayout, rule.EndTime)
		if err != nil {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Rule has an invalid end time")
		}
		startAt := time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour(), startClock.Minute(), 0, 0, loc)
		endAt := time.Date(day.Year(), day.Month(), day.Day(), endClock.Hour(), endClock.Minute(), 0, 0, loc)
		if !startAt.After(now) {
			return zero, zero, nil, nil, apperrors.SlotUnavailable("Occurrence is in the past")
		}
		recurring[i].BookedDates = append(append([]string{}, rule.BookedDates...), date)
		return startAt.UTC(), endAt.UTC(), mentor.OneTimeSlots, recurring, nil
	}

	return zero, zero, nil, nil, apperrors.SlotUnavailable("Slot not found")
}

// TopUpIntent opens a payment intent that credits the client's wallet on
// completion. No commission applies to top-ups.
func (s *BookingService) TopUpIntent(ctx context.Context, clientID string, amountCents int64, attempt int) (*BookingIntent, error) {
	if amountCents <= 0 {
		return nil, apperrors.InvalidInput("amountCents", "must be positive")
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, apperrors.NotFound("Client")
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountCents:    amountCents,
		Currency:       s.currency,
		IdempotencyKey: fmt.Sprintf("topup:%s:%d:%d", clientID, amountCents, attempt),
		Metadata: map[string]string{
			"purpose":   topUpPurpose,
			"client_id": clientID,
		},
	})
	if err != nil {
		return nil, err
	}
	return &BookingIntent{
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  amountCents,
		Currency:     s.currency,
	}, nil
}

// TopUpComplete verifies a top-up intent and credits the client wallet
// with the amount the processor actually charged. Completing the same
// intent twice credits once.
func (s *BookingService) TopUpComplete(ctx context.Context, clientID, intentID string) (int64, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return 0, err
	}
	if intent.Status != "succeeded" {
		return 0, apperrors.PaymentNotVerified(fmt.Sprintf("payment intent status is %q, not succeeded", intent.Status))
	}
	if intent.Metadata["purpose"] != topUpPurpose {
		return 0, apperrors.PaymentMismatch("payment intent is not a wallet top-up")
	}
	if intent.Metadata["client_id"] != clientID {
		return 0, apperrors.PaymentMismatch("payment intent belongs to a different client")
	}

	var credited int64
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.paymentRepo(tx).FindByIntentID(ctx, intentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		payment, err := s.paymentRepo(tx).Create(ctx, model.CreatePaymentParams{
			IntentID:                intent.IntentID,
			ClientID:                &clientID,
			AmountCents:             intent.AmountCents,
			Currency:                intent.Currency,
			PlatformCommissionCents: 0,
			Status:                  model.PaymentStatusSucceeded,
		})
		if err != nil {
			return err
		}
		if err := s.wallet.CreditClient(ctx, tx, clientID, intent.AmountCents, model.ReasonWalletTopup, &payment.ID, nil); err != nil {
			return err
		}
		credited = intent.AmountCents
		return nil
	})
	if err != nil {
		return 0, err
	}

	if credited > 0 {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventWalletTopUp,
			Details: map[string]interface{}{"client_id": clientID, "credited_cents": credited},
		})
	}
	return credited, nil
}
