package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/repository"
)

// WalletService is the only path for wallet balance changes. Every call
// writes exactly one ledger entry and updates the cached balance in the
// same transaction, reading the balance fresh immediately before mutating.
// Callers that also mutate a session must pass their own transaction so
// the whole settlement is one atomic unit.
type WalletService struct {
	clientWallets repository.ClientWalletRepository
	mentorWallets repository.MentorWalletRepository
}

func NewWalletService(
	clientWallets repository.ClientWalletRepository,
	mentorWallets repository.MentorWalletRepository,
) *WalletService {
	return &WalletService{
		clientWallets: clientWallets,
		mentorWallets: mentorWallets,
	}
}

func (s *WalletService) clientRepo(tx *sqlx.Tx) repository.ClientWalletRepository {
	if tx != nil {
		return s.clientWallets.WithTx(tx)
	}
	return s.clientWallets
}

func (s *WalletService) mentorRepo(tx *sqlx.Tx) repository.MentorWalletRepository {
	if tx != nil {
		return s.mentorWallets.WithTx(tx)
	}
	return s.mentorWallets
}

// CreditClient adds amountCents to the client wallet.
func (s *WalletService) CreditClient(ctx context.Context, tx *sqlx.Tx, clientID string, amountCents int64, reason model.WalletReason, relatedPaymentID, relatedSessionID *string) error {
	if amountCents <= 0 {
		return apperrors.Wallet("credit requires a positive amount")
	}
	repo := s.clientRepo(tx)

	balance, err := repo.BalanceForUpdate(ctx, clientID)
	if err != nil {
		return fmt.Errorf("read client balance: %w", err)
	}
	if _, err := repo.InsertEntry(ctx, clientID, model.LedgerEntryParams{
		AmountCents:      amountCents,
		Reason:           reason,
		RelatedPaymentID: relatedPaymentID,
		RelatedSessionID: relatedSessionID,
	}); err != nil {
		return fmt.Errorf("insert client ledger entry: %w", err)
	}
	if err := repo.SetBalance(ctx, clientID, balance+amountCents); err != nil {
		return fmt.Errorf("update client balance: %w", err)
	}

	log.Info().
		Str("clientId", clientID).
		Int64("amountCents", amountCents).
		Str("reason", string(reason)).
		Msg("client wallet credited")
	return nil
}

// DebitClient removes amountCents from the client wallet. Fails without
// any mutation when the balance does not cover the amount.
func (s *WalletService) DebitClient(ctx context.Context, tx *sqlx.Tx, clientID string, amountCents int64, reason model.WalletReason, relatedPaymentID, relatedSessionID *string) error {
	if amountCents <= 0 {
		return apperrors.Wallet("debit requires a positive amount")
	}
	repo := s.clientRepo(tx)

	balance, err := repo.BalanceForUpdate(ctx, clientID)
	if err != nil {
		return fmt.Errorf("read client balance: %w", err)
	}
	if balance < amountCents {
		return apperrors.InsufficientBalance()
	}
	if _, err := repo.InsertEntry(ctx, clientID, model.LedgerEntryParams{
		AmountCents:      -amountCents,
		Reason:           reason,
		RelatedPaymentID: relatedPaymentID,
		RelatedSessionID: relatedSessionID,
	}); err != nil {
		return fmt.Errorf("insert client ledger entry: %w", err)
	}
	if err := repo.SetBalance(ctx, clientID, balance-amountCents); err != nil {
		return fmt.Errorf("update client balance: %w", err)
	}

	log.Info().
		Str("clientId", clientID).
		Int64("amountCents", amountCents).
		Str("reason", string(reason)).
		Msg("client wallet debited")
	return nil
}

// CreditMentor adds amountCents to the mentor wallet.
func (s *WalletService) CreditMentor(ctx context.Context, tx *sqlx.Tx, mentorID string, amountCents int64, reason model.WalletReason, relatedPaymentID, relatedSessionID *string) error {
	if amountCents <= 0 {
		return apperrors.Wallet("credit requires a positive amount")
	}
	repo := s.mentorRepo(tx)

	balance, err := repo.BalanceForUpdate(ctx, mentorID)
	if err != nil {
		return fmt.Errorf("read mentor balance: %w", err)
	}
	if _, err := repo.InsertEntry(ctx, mentorID, model.LedgerEntryParams{
		AmountCents:      amountCents,
		Reason:           reason,
		RelatedPaymentID: relatedPaymentID,
		RelatedSessionID: relatedSessionID,
	}); err != nil {
		return fmt.Errorf("insert mentor ledger entry: %w", err)
	}
	if err := repo.SetBalance(ctx, mentorID, balance+amountCents); err != nil {
		return fmt.Errorf("update mentor balance: %w", err)
	}

	log.Info().
		Str("mentorId", mentorID).
		Int64("amountCents", amountCents).
		Str("reason", string(reason)).
		Msg("mentor wallet credited")
	return nil
}

// DebitMentor removes amountCents from the mentor wallet. Fails without
// any mutation when the balance does not cover the amount.
func (s *WalletService) DebitMentor(ctx context.Context, tx *sqlx.Tx, mentorID string, amountCents int64, reason model.WalletReason, relatedPaymentID, relatedSessionID *string) error {
	if amountCents <= 0 {
		return apperrors.Wallet("debit requires a positive amount")
	}
	repo := s.mentorRepo(tx)

	balance, err := repo.BalanceForUpdate(ctx, mentorID)
	if err != nil {
		return fmt.Errorf("read mentor balance: %w", err)
	}
	if balance < amountCents {
		return apperrors.InsufficientBalance()
	}
	if _, err := repo.InsertEntry(ctx, mentorID, model.LedgerEntryParams{
		AmountCents:      -amountCents,
		Reason:           reason,
		RelatedPaymentID: relatedPaymentID,
		RelatedSessionID: relatedSessionID,
	}); err != nil {
		return fmt.Errorf("insert mentor ledger entry: %w", err)
	}
	if err := repo.SetBalance(ctx, mentorID, balance-amountCents); err != nil {
		return fmt.Errorf("update mentor balance: %w", err)
	}

	log.Info().
		Str("mentorId", mentorID).
		Int64("amountCents", amountCents).
		Str("reason", string(reason)).
		Msg("mentor wallet debited")
	return nil
}

// HasMentorSessionEntry reports whether the mentor ledger already has an
// entry for this session and reason. Used by the payout sweep to stay
// idempotent.
func (s *WalletService) HasMentorSessionEntry(ctx context.Context, tx *sqlx.Tx, sessionID string, reason model.WalletReason) (bool, error) {
	return s.mentorRepo(tx).HasSessionEntry(ctx, sessionID, reason)
}
