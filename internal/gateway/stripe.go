package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
)

const (
	stripeTimeout         = 10 * time.Second
	intentStatusSucceeded = "succeeded"
	metadataMentorKey     = "mentor_id"
)

// StripeGateway talks to the Stripe payment-intents API over its
// form-encoded REST surface.
type StripeGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewStripeGateway(baseURL, secretKey string) *StripeGateway {
	return &StripeGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client: &http.Client{
			Timeout: stripeTimeout,
		},
	}
}

type stripeIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *StripeGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", params.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	start := time.Now()
	intent, err := g.do(req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("intentId", intent.IntentID).
		Int64("amountCents", intent.AmountCents).
		Dur("elapsed", time.Since(start)).
		Msg("payment intent created")
	return intent, nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	return g.do(req)
}

func (g *StripeGateway) VerifyIntentSucceeded(ctx context.Context, intentID string, expectedAmountCents int64, expectedMentorID string) (*Intent, error) {
	intent, err := g.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.Status != intentStatusSucceeded {
		return nil, apperrors.PaymentNotVerified(fmt.Sprintf("payment intent status is %q, not succeeded", intent.Status))
	}
	if intent.AmountCents != expectedAmountCents {
		return nil, apperrors.PaymentMismatch(fmt.Sprintf("payment amount %d does not match expected %d", intent.AmountCents, expectedAmountCents))
	}
	if intent.Metadata[metadataMentorKey] != expectedMentorID {
		return nil, apperrors.PaymentMismatch("payment intent was created for a different mentor")
	}
	return intent, nil
}

func (g *StripeGateway) do(req *http.Request) (*Intent, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperrors.External("stripe", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.External("stripe", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var stripeErr stripeErrorBody
		_ = json.Unmarshal(body, &stripeErr)
		log.Error().
			Int("status", resp.StatusCode).
			Str("stripeError", stripeErr.Error.Message).
			Msg("stripe request failed")
		return nil, apperrors.External("stripe", fmt.Errorf("status %d: %s", resp.StatusCode, stripeErr.Error.Message))
	}

	var raw stripeIntent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.External("stripe", fmt.Errorf("decode response: %w", err))
	}
	return &Intent{
		IntentID:     raw.ID,
		ClientSecret: raw.ClientSecret,
		AmountCents:  raw.Amount,
		Currency:     raw.Currency,
		Status:       raw.Status,
		Metadata:     raw.Metadata,
	}, nil
}
