// Package gateway wraps the external payment processor. The settlement
// core never talks to the processor directly; it goes through the
// PaymentGateway interface so booking flows can be tested against a fake.
package gateway

import "context"

// Intent is the processor-side payment record. AmountCents and Metadata
// are what the processor reports, not what the caller requested; the
// verification step compares the two.
type Intent struct {
	IntentID     string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       string
	Metadata     map[string]string
}

type CreateIntentParams struct {
	AmountCents int64
	Currency    string
	// IdempotencyKey makes retried intent creation safe: the processor
	// returns the original intent instead of creating a duplicate.
	IdempotencyKey string
	Metadata       map[string]string
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	// RetrieveIntent fetches the current processor-side state of an intent.
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	// VerifyIntentSucceeded retrieves the intent and checks that it
	// succeeded, charged the expected amount and was created for the
	// expected mentor. A typed error describes which check failed.
	VerifyIntentSucceeded(ctx context.Context, intentID string, expectedAmountCents int64, expectedMentorID string) (*Intent, error)
}
