package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/transfer"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider configures the Stripe client. The key is set once,
// process wide, matching how the stripe-go package is meant to be used.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (s *StripeProvider) CreateIntent(ctx context.Context, in CreateIntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(in.AmountCents),
		Currency:    stripe.String(strings.ToLower(in.Currency)),
		Description: stripe.String(in.Description),
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create intent: %v", ErrProvider, err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	pi, err := paymentintent.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve intent: %v", ErrProvider, err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: decode event object: %v", ErrProvider, err)
	}
	return &WebhookEvent{
		Type:     string(event.Type),
		IntentID: pi.ID,
		OrderID:  pi.Metadata["orderId"],
	}, nil
}

// Transfer pays out to the seller's connected account, grouped under
// the order so provider-side reporting can tie payment and payout.
func (s *StripeProvider) Transfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	params := &stripe.TransferParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(in.AmountCents),
		Currency:      stripe.String(strings.ToLower(in.Currency)),
		Destination:   stripe.String(in.Destination),
		TransferGroup: stripe.String(in.OrderID),
	}
	params.AddMetadata("orderId", in.OrderID)

	t, err := transfer.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create transfer: %v", ErrProvider, err)
	}
	return &Transfer{ID: t.ID}, nil
}

// Compile-time assertions that StripeProvider implements both provider
// interfaces.
var (
	_ Provider    = (*StripeProvider)(nil)
	_ Transferrer = (*StripeProvider)(nil)
)
