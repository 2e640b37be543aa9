package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/healthy-mentoring/server-go/internal/model"
)

type PaymentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	Create(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error)
	// MarkRefunded flips only the status: the commission recorded at
	// payment time is a historical fact and is never touched.
	MarkRefunded(ctx context.Context, id string) error
	// EarningsCents sums amount minus commission over succeeded payments
	// whose session is payout_available or paid_out. Completed sessions do
	// not count until the refund window closes.
	EarningsCents(ctx context.Context, mentorID string) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PaymentRepository
}

type paymentRepo struct {
	db sqlxDB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) WithTx(tx *sqlx.Tx) PaymentRepository {
	return &paymentRepo{db: tx}
}

func (r *paymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE id = $1
	`, id)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) FindByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE intent_id = $1
	`, intentID)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) Create(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		INSERT INTO payments (intent_id, mentor_id, client_id, session_id, amount_cents, currency, platform_commission_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, params.IntentID, params.MentorID, params.ClientID, params.SessionID,
		params.AmountCents, params.Currency, params.PlatformCommissionCents, params.Status)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = 'refunded', updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *paymentRepo) EarningsCents(ctx context.Context, mentorID string) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(GREATEST(p.amount_cents - p.platform_commission_cents, 0)), 0)
		FROM payments p
		JOIN sessions s ON s.id = p.session_id
		WHERE p.mentor_id = $1
		AND p.status = 'succeeded'
		AND s.status IN ('payout_available', 'paid_out')
	`, mentorID)
	return total, err
}
