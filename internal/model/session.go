package model

import (
	"encoding/json"
	"time"
)

type Session struct {
	ID           string           `db:"id" json:"id"`
	MentorID     string           `db:"mentor_id" json:"mentorId"`
	AttendeeID   *string          `db:"attendee_id" json:"attendeeId,omitempty"`
	StartAt      time.Time        `db:"start_at" json:"startAt"`
	EndAt        time.Time        `db:"end_at" json:"endAt"`
	Status       SessionStatus    `db:"status" json:"status"`
	PriceCents   *int64           `db:"price_cents" json:"priceCents,omitempty"`
	PaymentID    *string          `db:"payment_id" json:"paymentId,omitempty"`
	RefundedAt   *time.Time       `db:"refunded_at" json:"refundedAt,omitempty"`
	PaidOutAt    *time.Time       `db:"paid_out_at" json:"paidOutAt,omitempty"`
	OriginalData *json.RawMessage `db:"original_data" json:"originalData,omitempty"`
	ChangedBy    *string          `db:"changed_by" json:"changedBy,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	MentorID   string
	AttendeeID *string
	StartAt    time.Time
	EndAt      time.Time
	Status     SessionStatus
	PriceCents *int64
	PaymentID  *string
}

// SessionSnapshot is stored in original_data when a confirmed session's
// time or price is altered after confirmation.
type SessionSnapshot struct {
	StartAt    time.Time `json:"startAt"`
	EndAt      time.Time `json:"endAt"`
	PriceCents *int64    `json:"priceCents,omitempty"`
	Status     string    `json:"status"`
}
