package model

type AccountRole string

const (
	RoleMentor AccountRole = "mentor"
	RoleClient AccountRole = "client"
)

type SessionStatus string

const (
	SessionStatusDraft           SessionStatus = "draft"
	SessionStatusInvited         SessionStatus = "invited"
	SessionStatusConfirmed       SessionStatus = "confirmed"
	SessionStatusCompleted       SessionStatus = "completed"
	SessionStatusCancelled       SessionStatus = "cancelled"
	SessionStatusRefunded        SessionStatus = "refunded"
	SessionStatusPayoutAvailable SessionStatus = "payout_available"
	SessionStatusPaidOut         SessionStatus = "paid_out"
	SessionStatusExpired         SessionStatus = "expired"
)

// IsTerminal reports whether a session in this status is a permanent
// historical record. Terminal sessions are never deleted or overwritten
// by availability saves.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusRefunded, SessionStatusExpired,
		SessionStatusPayoutAvailable, SessionStatusPaidOut:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// WalletReason is the fixed vocabulary for ledger entries. Reasons are used
// for idempotency checks and reporting; never free text.
type WalletReason string

const (
	ReasonCancellationRefund WalletReason = "cancellation_refund"
	ReasonRefund             WalletReason = "refund"
	ReasonPayoutAvailable    WalletReason = "payout_available"
	ReasonPayoutWithdrawal   WalletReason = "payout_withdrawal"
	ReasonWalletTopup        WalletReason = "wallet_topup"
)

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

type SlotType string

const (
	// SlotTypeAvailability is a plain bookable one-time slot; expired ones
	// are removed by the cleanup sweep.
	SlotTypeAvailability SlotType = "availability_slot"
	// SlotTypeConverted is a one-time slot produced by converting a single
	// recurring occurrence; it keeps the original rule's id and created_at.
	SlotTypeConverted SlotType = "converted_slot"
)
