package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/healthy-mentoring/server-go/internal/model"
)

type MentorRepository interface {
	FindByID(ctx context.Context, id string) (*model.MentorProfile, error)
	// FindByIDForUpdate locks the mentor row for the rest of the
	// transaction. Every availability mutation goes through this.
	FindByIDForUpdate(ctx context.Context, id string) (*model.MentorProfile, error)
	FindByAccountID(ctx context.Context, accountID string) (*model.MentorProfile, error)
	ListIDs(ctx context.Context) ([]string, error)
	UpdateAvailability(ctx context.Context, id string, oneTime model.OneTimeSlots, recurring model.RecurringSlots, hasCollisions bool) error
	UpdateSessionLength(ctx context.Context, id string, lengthMinutes int, oneTime model.OneTimeSlots, recurring model.RecurringSlots, hasCollisions bool) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MentorRepository
}

type mentorRepo struct {
	db sqlxDB
}

func NewMentorRepository(db *sqlx.DB) MentorRepository {
	return &mentorRepo{db: db}
}

func (r *mentorRepo) WithTx(tx *sqlx.Tx) MentorRepository {
	return &mentorRepo{db: tx}
}

func (r *mentorRepo) FindByID(ctx context.Context, id string) (*model.MentorProfile, error) {
	var mentor model.MentorProfile
	err := r.db.GetContext(ctx, &mentor, `
		SELECT * FROM mentor_profiles WHERE id = $1
	`, id)
	return HandleNotFound(&mentor, err)
}

func (r *mentorRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.MentorProfile, error) {
	var mentor model.MentorProfile
	err := r.db.GetContext(ctx, &mentor, `
		SELECT * FROM mentor_profiles WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&mentor, err)
}

func (r *mentorRepo) FindByAccountID(ctx context.Context, accountID string) (*model.MentorProfile, error) {
	var mentor model.MentorProfile
	err := r.db.GetContext(ctx, &mentor, `
		SELECT * FROM mentor_profiles WHERE account_id = $1
	`, accountID)
	return HandleNotFound(&mentor, err)
}

func (r *mentorRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM mentor_profiles ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *mentorRepo) UpdateAvailability(ctx context.Context, id string, oneTime model.OneTimeSlots, recurring model.RecurringSlots, hasCollisions bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mentor_profiles SET
			one_time_slots = $2,
			recurring_slots = $3,
			has_collisions = $4,
			updated_at = NOW()
		WHERE id = $1
	`, id, oneTime, recurring, hasCollisions)
	return err
}

func (r *mentorRepo) UpdateSessionLength(ctx context.Context, id string, lengthMinutes int, oneTime model.OneTimeSlots, recurring model.RecurringSlots, hasCollisions bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mentor_profiles SET
			session_length_minutes = $2,
			one_time_slots = $3,
			recurring_slots = $4,
			has_collisions = $5,
			updated_at = NOW()
		WHERE id = $1
	`, id, lengthMinutes, oneTime, recurring, hasCollisions)
	return err
}
