package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/healthy-mentoring/server-go/internal/audit"
	"github.com/healthy-mentoring/server-go/internal/database"
	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/notify"
	"github.com/healthy-mentoring/server-go/internal/repository"
)

// TxRunner runs a function inside a database transaction. *database.DB
// satisfies it; tests substitute a pass-through.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

var _ TxRunner = (*database.DB)(nil)

// SettlementService drives every money-moving session transition:
// cancellation refunds, post-completion refunds, payout availability and
// withdrawal. Each operation locks the session row before reading its
// status, so a sweep job and a user action racing on the same session
// serialize instead of double-processing. A failure anywhere rolls the
// whole operation back; no partial settlement is ever persisted.
type SettlementService struct {
	db       TxRunner
	sessions repository.SessionRepository
	payments repository.PaymentRepository
	wallet   *WalletService
	notifier notify.Notifier

	cancellationWindow time.Duration
	refundWindow       time.Duration
	now                func() time.Time
}

func NewSettlementService(
	db TxRunner,
	sessions repository.SessionRepository,
	payments repository.PaymentRepository,
	wallet *WalletService,
	notifier notify.Notifier,
	cancellationWindow time.Duration,
	refundWindow time.Duration,
) *SettlementService {
	return &SettlementService{
		db:                 db,
		sessions:           sessions,
		payments:           payments,
		wallet:             wallet,
		notifier:           notifier,
		cancellationWindow: cancellationWindow,
		refundWindow:       refundWindow,
		now:                time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *SettlementService) WithClock(now func() time.Time) *SettlementService {
	s.now = now
	return s
}

// RefundWindow is the configured post-completion refund window. The payout
// sweep derives its candidate cutoff from it.
func (s *SettlementService) RefundWindow() time.Duration {
	return s.refundWindow
}

func (s *SettlementService) sessionRepo(tx *sqlx.Tx) repository.SessionRepository {
	if tx != nil {
		return s.sessions.WithTx(tx)
	}
	return s.sessions
}

func (s *SettlementService) paymentRepo(tx *sqlx.Tx) repository.PaymentRepository {
	if tx != nil {
		return s.payments.WithTx(tx)
	}
	return s.payments
}

func sessionAmountCents(session *model.Session) int64 {
	if session.PriceCents == nil {
		return 0
	}
	return *session.PriceCents
}

// CancelWithRefund cancels an invited or confirmed session before the
// cancellation window closes and refunds the full amount to the client
// wallet. Returns the refunded amount in cents.
func (s *SettlementService) CancelWithRefund(ctx context.Context, sessionID string) (int64, error) {
	now := s.now()
	var refunded int64

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		session, err := s.sessionRepo(tx).FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperrors.NotFound("Session")
		}
		if session.Status != model.SessionStatusInvited && session.Status != model.SessionStatusConfirmed {
			return apperrors.Cancellation("Only invited or confirmed sessions can be cancelled")
		}
		deadline := session.StartAt.Add(-s.cancellationWindow)
		if now.After(deadline) {
			return apperrors.Cancellation("Cancellation window has passed")
		}

		amount := sessionAmountCents(session)
		payment, err := s.paymentRepo(tx).FindBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}

		var refundedAt *time.Time
		if amount > 0 {
			if session.AttendeeID == nil {
				return apperrors.Cancellation("Cannot find client for refund")
			}
			var paymentID *string
			if payment != nil {
				paymentID = &payment.ID
			}
			if err := s.wallet.CreditClient(ctx, tx, *session.AttendeeID, amount, model.ReasonCancellationRefund, paymentID, &session.ID); err != nil {
				return err
			}
			if payment != nil {
				if err := s.paymentRepo(tx).MarkRefunded(ctx, payment.ID); err != nil {
					return err
				}
			}
			refundedAt = &now
			refunded = amount
		}

		return s.sessionRepo(tx).MarkCancelled(ctx, sessionID, refundedAt)
	})
	if err != nil {
		return 0, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCancelled,
		SessionID: sessionID,
		Details:   map[string]interface{}{"refunded_cents": refunded},
	})
	s.notifier.Notify(ctx, notify.Event{
		Type:      notify.SessionCancelled,
		SessionID: sessionID,
	})
	return refunded, nil
}

// DeclineInvitation declines an invited session. Unlike cancellation there
// is no window restriction and no refund: nothing was captured at the
// invitation stage.
func (s *SettlementService) DeclineInvitation(ctx context.Context, sessionID string) error {
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		session, err := s.sessionRepo(tx).FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperrors.NotFound("Session")
		}
		if session.Status != model.SessionStatusInvited {
			return apperrors.Cancellation("Only invited sessions can be declined")
		}
		return s.sessionRepo(tx).MarkCancelled(ctx, sessionID, nil)
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:      notify.SessionDeclined,
		SessionID: sessionID,
	})
	return nil
}

// RefundCompleted refunds a completed session within the refund window,
// crediting the client wallet and flipping the payment to refunded. The
// commission recorded on the payment is never altered. Returns the
// refunded amount in cents.
func (s *SettlementService) RefundCompleted(ctx context.Context, sessionID string) (int64, error) {
	now := s.now()
	var refunded int64

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		session, err := s.sessionRepo(tx).FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperrors.NotFound("Session")
		}
		switch session.Status {
		case model.SessionStatusPayoutAvailable, model.SessionStatusPaidOut, model.SessionStatusRefunded:
			return apperrors.Refund("Cannot refund a payout-available or paid-out session")
		}
		if session.Status != model.SessionStatusCompleted {
			return apperrors.Refund("Only completed sessions can be refunded")
		}
		deadline := session.EndAt.Add(s.refundWindow)
		if now.After(deadline) {
			return apperrors.Refund("Refund window has passed")
		}

		amount := sessionAmountCents(session)
		payment, err := s.paymentRepo(tx).FindBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}

		if amount > 0 {
			if session.AttendeeID == nil {
				return apperrors.Refund("Cannot find client for refund")
			}
			var paymentID *string
			if payment != nil {
				paymentID = &payment.ID
			}
			if err := s.wallet.CreditClient(ctx, tx, *session.AttendeeID, amount, model.ReasonRefund, paymentID, &session.ID); err != nil {
				return err
			}
			if payment != nil {
				if err := s.paymentRepo(tx).MarkRefunded(ctx, payment.ID); err != nil {
					return err
				}
			}
			refunded = amount
		}

		return s.sessionRepo(tx).MarkRefunded(ctx, sessionID, now)
	})
	if err != nil {
		return 0, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionRefunded,
		SessionID: sessionID,
		Details:   map[string]interface{}{"refunded_cents": refunded},
	})
	s.notifier.Notify(ctx, notify.Event{
		Type:      notify.SessionRefunded,
		SessionID: sessionID,
	})
	return refunded, nil
}

// MarkPayoutAvailable transitions a completed session whose refund window
// has elapsed to payout_available and credits the mentor wallet with the
// payment amount minus the platform commission, floored at zero.
//
// The status transition is persisted before the wallet credit: if the
// credit fails and the sweep retries, the ledger-entry idempotency check
// keeps the mentor from being credited twice. Ineligible sessions return
// (0, nil) so the sweep can call this blindly. Returns the credited
// amount in cents.
func (s *SettlementService) MarkPayoutAvailable(ctx context.Context, sessionID string) (int64, error) {
	now := s.now()
	var credited int64

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		session, err := s.sessionRepo(tx).FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperrors.NotFound("Session")
		}
		if session.Status != model.SessionStatusCompleted {
			return nil
		}
		eligibleAt := session.EndAt.Add(s.refundWindow)
		if now.Before(eligibleAt) {
			return nil
		}

		// Status before credit: the transition must be durable even if the
		// credit path fails on a retry.
		if err := s.sessionRepo(tx).MarkPayoutAvailable(ctx, sessionID); err != nil {
			return err
		}

		payment, err := s.paymentRepo(tx).FindBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		if payment == nil {
			return nil
		}

		alreadyCredited, err := s.wallet.HasMentorSessionEntry(ctx, tx, sessionID, model.ReasonPayoutAvailable)
		if err != nil {
			return err
		}
		amount := payment.MentorNetCents()
		if amount > 0 && !alreadyCredited {
			if err := s.wallet.CreditMentor(ctx, tx, session.MentorID, amount, model.ReasonPayoutAvailable, &payment.ID, &session.ID); err != nil {
				return err
			}
			credited = amount
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if credited > 0 {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventPayoutAvailable,
			SessionID: sessionID,
			Details:   map[string]interface{}{"credited_cents": credited},
		})
	}
	return credited, nil
}

// Withdraw pays out a payout_available session to its mentor, debiting
// the mentor wallet. The requesting mentor must own the session. Returns
// the withdrawn amount in cents.
func (s *SettlementService) Withdraw(ctx context.Context, sessionID, mentorID string) (int64, error) {
	now := s.now()
	var withdrawn int64

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		session, err := s.sessionRepo(tx).FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperrors.NotFound("Session")
		}
		if session.Status != model.SessionStatusPayoutAvailable {
			return apperrors.Payout("Only payout_available sessions can be withdrawn")
		}
		if session.MentorID != mentorID {
			return apperrors.Payout("Not authorized for this session payout")
		}

		payment, err := s.paymentRepo(tx).FindBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		if payment == nil {
			return apperrors.Payout("No payment found for this session")
		}
		amount := payment.MentorNetCents()
		if amount <= 0 {
			return apperrors.Payout("No payout amount available")
		}

		if err := s.wallet.DebitMentor(ctx, tx, mentorID, amount, model.ReasonPayoutWithdrawal, &payment.ID, &session.ID); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance) {
				return apperrors.Payout("Insufficient wallet balance").WithCause(err)
			}
			return err
		}
		withdrawn = amount
		return s.sessionRepo(tx).MarkPaidOut(ctx, sessionID, now)
	})
	if err != nil {
		return 0, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPayoutWithdrawn,
		MentorID:  mentorID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"withdrawn_cents": withdrawn},
	})
	log.Info().
		Str("sessionId", sessionID).
		Str("mentorId", mentorID).
		Int64("amountCents", withdrawn).
		Msg("session payout withdrawn")
	return withdrawn, nil
}
