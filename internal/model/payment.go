package model

import (
	"time"
)

// Payment persists one external payment authorization. The gateway is the
// source of truth for the charge itself; this row exists for reporting and
// idempotency. PlatformCommissionCents is fixed at creation and never
// recalculated, not even on refund.
type Payment struct {
	ID                      string        `db:"id" json:"id"`
	IntentID                string        `db:"intent_id" json:"intentId"`
	MentorID                *string       `db:"mentor_id" json:"mentorId,omitempty"`
	ClientID                *string       `db:"client_id" json:"clientId,omitempty"`
	SessionID               *string       `db:"session_id" json:"sessionId,omitempty"`
	AmountCents             int64         `db:"amount_cents" json:"amountCents"`
	Currency                string        `db:"currency" json:"currency"`
	PlatformCommissionCents int64         `db:"platform_commission_cents" json:"platformCommissionCents"`
	Status                  PaymentStatus `db:"status" json:"status"`
	CreatedAt               time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updatedAt"`
}

// MentorNetCents is the mentor's share: amount minus the platform
// commission, floored at zero.
func (p Payment) MentorNetCents() int64 {
	net := p.AmountCents - p.PlatformCommissionCents
	if net < 0 {
		return 0
	}
	return net
}

type CreatePaymentParams struct {
	IntentID                string
	MentorID                *string
	ClientID                *string
	SessionID               *string
	AmountCents             int64
	Currency                string
	PlatformCommissionCents int64
	Status                  PaymentStatus
}
