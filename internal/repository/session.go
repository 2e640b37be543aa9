package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/healthy-mentoring/server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindByIDForUpdate locks the session row for the rest of the
	// transaction. Every settlement operation reads status through this to
	// serialize concurrent attempts on the same session.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Session, error)
	FindActiveByMentor(ctx context.Context, mentorID string) ([]model.Session, error)
	ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.Session, error)
	ListByAttendee(ctx context.Context, attendeeID string, limit, offset int) ([]model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	UpdateSchedule(ctx context.Context, id string, startAt, endAt time.Time, priceCents *int64, status model.SessionStatus, originalData *json.RawMessage, changedBy string) error
	SetPayment(ctx context.Context, id string, paymentID string) error
	MarkCancelled(ctx context.Context, id string, refundedAt *time.Time) error
	MarkRefunded(ctx context.Context, id string, refundedAt time.Time) error
	MarkPayoutAvailable(ctx context.Context, id string) error
	MarkPaidOut(ctx context.Context, id string, paidOutAt time.Time) error
	Delete(ctx context.Context, id string) error
	// Sweep operations for the periodic cleanup job.
	DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error)
	ExpireInvited(ctx context.Context, now time.Time) (int64, error)
	CompleteConfirmed(ctx context.Context, now time.Time) (int64, error)
	FindPayoutCandidates(ctx context.Context, endedBefore time.Time) ([]model.Session, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByMentor(ctx context.Context, mentorID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE mentor_id = $1 AND status != 'cancelled'
		ORDER BY start_at
	`, mentorID)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE mentor_id = $1
		ORDER BY start_at DESC
		LIMIT $2 OFFSET $3
	`, mentorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) ListByAttendee(ctx context.Context, attendeeID string, limit, offset int) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE attendee_id = $1
		ORDER BY start_at DESC
		LIMIT $2 OFFSET $3
	`, attendeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (mentor_id, attendee_id, start_at, end_at, status, price_cents, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.MentorID, params.AttendeeID, params.StartAt, params.EndAt, params.Status, params.PriceCents, params.PaymentID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) UpdateSchedule(ctx context.Context, id string, startAt, endAt time.Time, priceCents *int64, status model.SessionStatus, originalData *json.RawMessage, changedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			start_at = $2,
			end_at = $3,
			price_cents = $4,
			status = $5,
			original_data = COALESCE($6, original_data),
			changed_by = $7,
			updated_at = NOW()
		WHERE id = $1
	`, id, startAt, endAt, priceCents, status, originalData, changedBy)
	return err
}

func (r *sessionRepo) SetPayment(ctx context.Context, id string, paymentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET payment_id = $2, updated_at = NOW() WHERE id = $1
	`, id, paymentID)
	return err
}

func (r *sessionRepo) MarkCancelled(ctx context.Context, id string, refundedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'cancelled',
			refunded_at = COALESCE($2, refunded_at),
			updated_at = NOW()
		WHERE id = $1
	`, id, refundedAt)
	return err
}

func (r *sessionRepo) MarkRefunded(ctx context.Context, id string, refundedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'refunded',
			refunded_at = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, refundedAt)
	return err
}

func (r *sessionRepo) MarkPayoutAvailable(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'payout_available', updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *sessionRepo) MarkPaidOut(ctx context.Context, id string, paidOutAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'paid_out',
			paid_out_at = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, paidOutAt)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = $1
	`, id)
	return err
}

func (r *sessionRepo) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE status = 'draft' AND end_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) ExpireInvited(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'expired', updated_at = NOW()
		WHERE status = 'invited' AND end_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) CompleteConfirmed(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'completed', updated_at = NOW()
		WHERE status = 'confirmed' AND end_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) FindPayoutCandidates(ctx context.Context, endedBefore time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE status = 'completed' AND end_at < $1
		ORDER BY end_at
	`, endedBefore)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
