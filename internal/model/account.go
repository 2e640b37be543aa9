package model

import (
	"time"
)

type Account struct {
	ID        string      `db:"id" json:"id"`
	Email     string      `db:"email" json:"email"`
	Role      AccountRole `db:"role" json:"role"`
	TokenHash string      `db:"token_hash" json:"-"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// MentorProfile carries the mentor's availability document alongside pricing
// and the cached wallet balance. Slot collections are stored as JSONB columns
// and mutated only through the availability save path.
type MentorProfile struct {
	ID                   string         `db:"id" json:"id"`
	AccountID            string         `db:"account_id" json:"accountId"`
	DisplayName          string         `db:"display_name" json:"displayName"`
	Timezone             string         `db:"timezone" json:"timezone"`
	SessionLengthMinutes int            `db:"session_length_minutes" json:"sessionLengthMinutes"`
	PricePerSessionCents int64          `db:"price_per_session_cents" json:"pricePerSessionCents"`
	HasCollisions        bool           `db:"has_collisions" json:"hasCollisions"`
	WalletBalanceCents   int64          `db:"wallet_balance_cents" json:"walletBalanceCents"`
	OneTimeSlots         OneTimeSlots   `db:"one_time_slots" json:"oneTimeSlots"`
	RecurringSlots       RecurringSlots `db:"recurring_slots" json:"recurringSlots"`
	CreatedAt            time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updatedAt"`
}

type ClientProfile struct {
	ID                 string    `db:"id" json:"id"`
	AccountID          string    `db:"account_id" json:"accountId"`
	DisplayName        string    `db:"display_name" json:"displayName"`
	WalletBalanceCents int64     `db:"wallet_balance_cents" json:"walletBalanceCents"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}
