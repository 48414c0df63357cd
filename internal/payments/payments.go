// Package payments abstracts the payment provider behind a small
// interface. Stripe is the production implementation; development mode
// runs against a fake that succeeds immediately.
package payments

import (
	"context"
	"errors"
)

var (
	// ErrProvider wraps transient provider failures. Handlers map it to
	// 502 so clients can retry.
	ErrProvider = errors.New("payment provider failure")
	// ErrBadSignature means a webhook payload failed signature verification.
	ErrBadSignature = errors.New("invalid webhook signature")
)

// Webhook event types the core reacts to.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Intent is a provider-side payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

// CreateIntentInput describes the intent to create.
type CreateIntentInput struct {
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// WebhookEvent is the provider-neutral view of an incoming webhook.
type WebhookEvent struct {
	Type     string
	IntentID string
	OrderID  string // from intent metadata, may be empty
}

// Provider creates and retrieves payment intents and parses webhooks.
type Provider interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	// ParseWebhook verifies the signature and extracts the event.
	// Returns ErrBadSignature on verification failure.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// TransferInput describes a payout of escrowed funds to a seller.
type TransferInput struct {
	AmountCents int64
	Currency    string
	// Destination identifies the seller at the provider (a Connect
	// account for Stripe).
	Destination string
	OrderID     string
}

// Transfer is a provider-side payout.
type Transfer struct {
	ID string `json:"id"`
}

// Transferrer moves escrowed funds to the seller once an order
// completes. Callers treat failures as retryable and log-only.
type Transferrer interface {
	Transfer(ctx context.Context, in TransferInput) (*Transfer, error)
}

// CalcFee returns the platform fee for an amount at the given rate in
// basis points, rounded half up.
func CalcFee(amountCents int64, rateBPS int) int64 {
	return (amountCents*int64(rateBPS) + 5000) / 10000
}
