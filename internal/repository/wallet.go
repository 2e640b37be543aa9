package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/healthy-mentoring/server-go/internal/model"
)

// Wallet repositories own the ledger invariant: the cached balance on the
// profile row always equals the sum of that actor's ledger entries, and
// every balance change writes exactly one entry. Balance reads for mutation
// take FOR UPDATE so the read is fresh under the caller's transaction.

type ClientWalletRepository interface {
	BalanceForUpdate(ctx context.Context, clientID string) (int64, error)
	InsertEntry(ctx context.Context, clientID string, params model.LedgerEntryParams) (*model.WalletTransaction, error)
	SetBalance(ctx context.Context, clientID string, balanceCents int64) error
	ListByClient(ctx context.Context, clientID string, limit, offset int) ([]model.WalletTransaction, error)
	CountByClient(ctx context.Context, clientID string) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ClientWalletRepository
}

type clientWalletRepo struct {
	db sqlxDB
}

func NewClientWalletRepository(db *sqlx.DB) ClientWalletRepository {
	return &clientWalletRepo{db: db}
}

func (r *clientWalletRepo) WithTx(tx *sqlx.Tx) ClientWalletRepository {
	return &clientWalletRepo{db: tx}
}

func (r *clientWalletRepo) BalanceForUpdate(ctx context.Context, clientID string) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `
		SELECT wallet_balance_cents FROM client_profiles WHERE id = $1 FOR UPDATE
	`, clientID)
	return balance, err
}

func (r *clientWalletRepo) InsertEntry(ctx context.Context, clientID string, params model.LedgerEntryParams) (*model.WalletTransaction, error) {
	var entry model.WalletTransaction
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO wallet_transactions (client_id, amount_cents, reason, related_payment_id, related_session_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, clientID, params.AmountCents, params.Reason, params.RelatedPaymentID, params.RelatedSessionID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *clientWalletRepo) SetBalance(ctx context.Context, clientID string, balanceCents int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE client_profiles SET wallet_balance_cents = $2, updated_at = NOW() WHERE id = $1
	`, clientID, balanceCents)
	return err
}

func (r *clientWalletRepo) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]model.WalletTransaction, error) {
	var entries []model.WalletTransaction
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM wallet_transactions
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *clientWalletRepo) CountByClient(ctx context.Context, clientID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM wallet_transactions WHERE client_id = $1
	`, clientID)
	return count, err
}

type MentorWalletRepository interface {
	BalanceForUpdate(ctx context.Context, mentorID string) (int64, error)
	InsertEntry(ctx context.Context, mentorID string, params model.LedgerEntryParams) (*model.MentorWalletTransaction, error)
	SetBalance(ctx context.Context, mentorID string, balanceCents int64) error
	ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.MentorWalletTransaction, error)
	CountByMentor(ctx context.Context, mentorID string) (int, error)
	// HasSessionEntry is the idempotency check for the payout sweep: a
	// ledger row tagged with the reason for that session means the credit
	// already happened.
	HasSessionEntry(ctx context.Context, sessionID string, reason model.WalletReason) (bool, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MentorWalletRepository
}

type mentorWalletRepo struct {
	db sqlxDB
}

func NewMentorWalletRepository(db *sqlx.DB) MentorWalletRepository {
	return &mentorWalletRepo{db: db}
}

func (r *mentorWalletRepo) WithTx(tx *sqlx.Tx) MentorWalletRepository {
	return &mentorWalletRepo{db: tx}
}

func (r *mentorWalletRepo) BalanceForUpdate(ctx context.Context, mentorID string) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `
		SELECT wallet_balance_cents FROM mentor_profiles WHERE id = $1 FOR UPDATE
	`, mentorID)
	return balance, err
}

func (r *mentorWalletRepo) InsertEntry(ctx context.Context, mentorID string, params model.LedgerEntryParams) (*model.MentorWalletTransaction, error) {
	var entry model.MentorWalletTransaction
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO mentor_wallet_transactions (mentor_id, amount_cents, reason, related_payment_id, related_session_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, mentorID, params.AmountCents, params.Reason, params.RelatedPaymentID, params.RelatedSessionID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *mentorWalletRepo) SetBalance(ctx context.Context, mentorID string, balanceCents int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mentor_profiles SET wallet_balance_cents = $2, updated_at = NOW() WHERE id = $1
	`, mentorID, balanceCents)
	return err
}

func (r *mentorWalletRepo) ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.MentorWalletTransaction, error) {
	var entries []model.MentorWalletTransaction
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM mentor_wallet_transactions
		WHERE mentor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, mentorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *mentorWalletRepo) CountByMentor(ctx context.Context, mentorID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM mentor_wallet_transactions WHERE mentor_id = $1
	`, mentorID)
	return count, err
}

func (r *mentorWalletRepo) HasSessionEntry(ctx context.Context, sessionID string, reason model.WalletReason) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM mentor_wallet_transactions
			WHERE related_session_id = $1 AND reason = $2
		)
	`, sessionID, reason)
	return exists, err
}
