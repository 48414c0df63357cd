package payments

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/novamarkt/platform/internal/idgen"
)

// FakeProvider is an in-memory provider for demo/development mode and
// tests. Webhook payloads are accepted as plain JSON without signature
// verification.
type FakeProvider struct {
	mu      sync.Mutex
	intents map[string]*fakeIntent
}

type fakeIntent struct {
	intent *Intent
	meta   map[string]string
}

// NewFakeProvider creates a fake payment provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{intents: make(map[string]*fakeIntent)}
}

func (f *FakeProvider) CreateIntent(ctx context.Context, in CreateIntentInput) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := idgen.WithPrefix("pi_fake_")
	intent := &Intent{ID: id, ClientSecret: id + "_secret"}
	meta := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	f.intents[id] = &fakeIntent{intent: intent, meta: meta}
	return intent, nil
}

func (f *FakeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fi, ok := f.intents[id]
	if !ok {
		return nil, ErrProvider
	}
	return fi.intent, nil
}

func (f *FakeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	var ev struct {
		Type     string `json:"type"`
		IntentID string `json:"intentId"`
		OrderID  string `json:"orderId"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, ErrBadSignature
	}

	if ev.OrderID == "" {
		f.mu.Lock()
		if fi, ok := f.intents[ev.IntentID]; ok {
			ev.OrderID = fi.meta["orderId"]
		}
		f.mu.Unlock()
	}
	return &WebhookEvent{Type: ev.Type, IntentID: ev.IntentID, OrderID: ev.OrderID}, nil
}

// Transfer records a pretend payout and succeeds immediately.
func (f *FakeProvider) Transfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	return &Transfer{ID: idgen.WithPrefix("tr_fake_")}, nil
}

// Compile-time assertions that FakeProvider implements both provider
// interfaces.
var (
	_ Provider    = (*FakeProvider)(nil)
	_ Transferrer = (*FakeProvider)(nil)
)
