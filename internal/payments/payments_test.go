package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCalcFee(t *testing.T) {
	cases := []struct {
		amount int64
		bps    int
		want   int64
	}{
		{10000, 240, 240}, // 2.4% of 100.00
		{4999, 240, 120},  // 119.976 rounds up
		{100, 240, 2},     // 2.4 rounds down
		{0, 240, 0},
		{10000, 0, 0},
		{333, 1000, 33}, // 33.3 rounds down
		{335, 1000, 34}, // 33.5 rounds up
	}
	for _, tc := range cases {
		if got := CalcFee(tc.amount, tc.bps); got != tc.want {
			t.Errorf("CalcFee(%d, %d) = %d, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestFakeProviderIntentRoundTrip(t *testing.T) {
	f := NewFakeProvider()
	ctx := context.Background()

	intent, err := f.CreateIntent(ctx, CreateIntentInput{
		AmountCents: 5000,
		Currency:    "EUR",
		Metadata:    map[string]string{"orderId": "ord_1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(intent.ID, "pi_fake_") {
		t.Errorf("unexpected intent id %q", intent.ID)
	}
	if intent.ClientSecret == "" {
		t.Error("intent must carry a client secret")
	}

	got, err := f.RetrieveIntent(ctx, intent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != intent.ID {
		t.Errorf("retrieved %q, want %q", got.ID, intent.ID)
	}

	if _, err := f.RetrieveIntent(ctx, "pi_missing"); !errors.Is(err, ErrProvider) {
		t.Errorf("expected ErrProvider for unknown intent, got %v", err)
	}
}

func TestFakeProviderParseWebhook(t *testing.T) {
	f := NewFakeProvider()
	ctx := context.Background()

	intent, err := f.CreateIntent(ctx, CreateIntentInput{
		AmountCents: 5000,
		Currency:    "EUR",
		Metadata:    map[string]string{"orderId": "ord_42"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The order ID is resolved from intent metadata when the payload
	// omits it.
	payload := []byte(`{"type":"payment_intent.succeeded","intentId":"` + intent.ID + `"}`)
	ev, err := f.ParseWebhook(payload, "")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventPaymentSucceeded {
		t.Errorf("unexpected event type %q", ev.Type)
	}
	if ev.OrderID != "ord_42" {
		t.Errorf("expected order id from metadata, got %q", ev.OrderID)
	}

	if _, err := f.ParseWebhook([]byte("not json"), ""); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature for garbage payload, got %v", err)
	}
}

func TestFakeProviderTransfer(t *testing.T) {
	f := NewFakeProvider()
	tr, err := f.Transfer(context.Background(), TransferInput{
		AmountCents: 4760,
		Currency:    "EUR",
		Destination: "usr_seller",
		OrderID:     "ord_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(tr.ID, "tr_fake_") {
		t.Errorf("unexpected transfer id %q", tr.ID)
	}
}
