package model

import (
	"time"
)

// WalletTransaction is an append-only ledger entry for a client wallet.
// AmountCents is signed: positive entries are credits, negative are debits.
// The client's cached wallet_balance_cents always equals the sum of their
// ledger entries.
type WalletTransaction struct {
	ID               string       `db:"id" json:"id"`
	ClientID         string       `db:"client_id" json:"clientId"`
	AmountCents      int64        `db:"amount_cents" json:"amountCents"`
	Reason           WalletReason `db:"reason" json:"reason"`
	RelatedPaymentID *string      `db:"related_payment_id" json:"relatedPaymentId,omitempty"`
	RelatedSessionID *string      `db:"related_session_id" json:"relatedSessionId,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
}

// MentorWalletTransaction is the mentor-side ledger, same invariants as the
// client ledger. Entries tagged payout_available double as the idempotency
// record for the payout sweep.
type MentorWalletTransaction struct {
	ID               string       `db:"id" json:"id"`
	MentorID         string       `db:"mentor_id" json:"mentorId"`
	AmountCents      int64        `db:"amount_cents" json:"amountCents"`
	Reason           WalletReason `db:"reason" json:"reason"`
	RelatedPaymentID *string      `db:"related_payment_id" json:"relatedPaymentId,omitempty"`
	RelatedSessionID *string      `db:"related_session_id" json:"relatedSessionId,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
}

type LedgerEntryParams struct {
	AmountCents      int64
	Reason           WalletReason
	RelatedPaymentID *string
	RelatedSessionID *string
}
