package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/fraud"
	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/payments"
	"github.com/novamarkt/platform/internal/trust"
	"github.com/novamarkt/platform/internal/user"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, data map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

type testEnv struct {
	users    *user.MemoryStore
	listings *listing.MemoryStore
	audits   *audit.MemoryStore
	store    *MemoryStore
	provider *payments.FakeProvider
	pub      *recordingPublisher
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := user.NewMemoryStore()
	listings := listing.NewMemoryStore()
	audits := audit.NewMemoryStore()
	signals := fraud.NewMemoryStore()
	store := NewMemoryStore(listings, audits)
	trustSvc := trust.NewService(users, store, signals, trust.NewMemorySnapshotStore())
	provider := payments.NewFakeProvider()
	pub := &recordingPublisher{}

	svc := NewService(store, listings, users, provider, audits, trustSvc, pub, Config{
		FeeRateBPS:   240,
		Currency:     "EUR",
		ReleaseAfter: 48 * time.Hour,
		ProviderName: "fake",
	}, WithPayouts(provider))

	return &testEnv{
		users:    users,
		listings: listings,
		audits:   audits,
		store:    store,
		provider: provider,
		pub:      pub,
		svc:      svc,
	}
}

func (e *testEnv) seedUser(t *testing.T, id string, role user.Role) *user.User {
	t.Helper()
	now := time.Now()
	u := &user.User{ID: id, Email: id + "@example.com", Role: role, CreatedAt: now, UpdatedAt: now}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) seedListing(t *testing.T, id, sellerID string, priceCents int64) *listing.Listing {
	t.Helper()
	now := time.Now()
	l := &listing.Listing{
		ID:         id,
		SellerID:   sellerID,
		Title:      "Testartikel",
		Category:   listing.CategorySonstiges,
		PriceCents: priceCents,
		Currency:   "EUR",
		Status:     listing.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.listings.Create(context.Background(), l); err != nil {
		t.Fatal(err)
	}
	return l
}

// payOrder drives an order to PAID through the intent and webhook flow.
func (e *testEnv) payOrder(t *testing.T, orderID, buyerID string) {
	t.Helper()
	ctx := context.Background()

	pr, err := e.svc.Pay(ctx, orderID, buyerID, "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	err = e.svc.HandleWebhook(ctx, &payments.WebhookEvent{
		Type:     payments.EventPaymentSucceeded,
		IntentID: pr.IntentID,
		OrderID:  orderID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) listingStatus(t *testing.T, id string) listing.Status {
	t.Helper()
	l, err := e.listings.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return l.Status
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, created, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("expected a fresh order")
	}
	if o.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", o.Status)
	}
	if o.TotalAmount != 10000 {
		t.Errorf("expected total 10000, got %d", o.TotalAmount)
	}
	if o.FeeCents != 240 {
		t.Errorf("expected fee 240, got %d", o.FeeCents)
	}
	if env.listingStatus(t, "lst_1") != listing.StatusReserved {
		t.Error("listing must be RESERVED after order creation")
	}
}

func TestCreateIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	first, created, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil || !created {
		t.Fatalf("first create failed: %v", err)
	}
	second, created, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("repeat create must not report a fresh order")
	}
	if second.ID != first.ID {
		t.Errorf("repeat create returned %s, want %s", second.ID, first.ID)
	}
}

func TestCreateSelfPurchase(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	_, _, err := env.svc.Create(context.Background(), "usr_seller", "lst_1", "")
	if !errors.Is(err, ErrSelfPurchase) {
		t.Errorf("expected ErrSelfPurchase, got %v", err)
	}
}

func TestCreateReservedListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer1", user.RoleUser)
	env.seedUser(t, "usr_buyer2", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	if _, _, err := env.svc.Create(ctx, "usr_buyer1", "lst_1", ""); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.svc.Create(ctx, "usr_buyer2", "lst_1", "")
	if !errors.Is(err, listing.ErrListingUnavailable) {
		t.Errorf("expected ErrListingUnavailable for second buyer, got %v", err)
	}
}

func TestPayAndWebhook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}

	pr, err := env.svc.Pay(ctx, o.ID, "usr_buyer", "")
	if err != nil {
		t.Fatal(err)
	}
	if pr.ClientSecret == "" || pr.IntentID == "" {
		t.Error("pay result must carry intent id and client secret")
	}
	if pr.AmountCents != 10000 {
		t.Errorf("expected amount 10000, got %d", pr.AmountCents)
	}

	// A second Pay reuses the stored intent.
	again, err := env.svc.Pay(ctx, o.ID, "usr_buyer", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.IntentID != pr.IntentID {
		t.Errorf("expected reused intent %s, got %s", pr.IntentID, again.IntentID)
	}

	err = env.svc.HandleWebhook(ctx, &payments.WebhookEvent{
		Type:     payments.EventPaymentSucceeded,
		IntentID: pr.IntentID,
		OrderID:  o.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := env.store.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPaid {
		t.Errorf("expected PAID after webhook, got %s", got.Status)
	}
	pay, err := env.store.GetPaymentByOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pay.Status != PaymentSucceeded {
		t.Errorf("expected payment SUCCEEDED, got %s", pay.Status)
	}

	// Webhook retries are no-ops once the order has left PENDING.
	err = env.svc.HandleWebhook(ctx, &payments.WebhookEvent{
		Type:     payments.EventPaymentSucceeded,
		IntentID: pr.IntentID,
		OrderID:  o.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ = env.store.Get(ctx, o.ID)
	if got.Status != StatusPaid {
		t.Errorf("webhook retry must not move the order, got %s", got.Status)
	}
}

func TestPayAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.Pay(ctx, o.ID, "usr_seller", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-buyer, got %v", err)
	}

	env.payOrder(t, o.ID, "usr_buyer")
	_, err = env.svc.Pay(ctx, o.ID, "usr_buyer", "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict paying a PAID order, got %v", err)
	}
}

func TestShipAndDeliver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedUser(t, "usr_other", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}

	// Shipping before payment is a conflict.
	if _, err := env.svc.MarkShipped(ctx, o.ID, "usr_seller", "TRK1", "dhl", ""); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict shipping a PENDING order, got %v", err)
	}

	env.payOrder(t, o.ID, "usr_buyer")

	if _, err := env.svc.MarkShipped(ctx, o.ID, "usr_other", "TRK1", "dhl", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-seller, got %v", err)
	}

	shipped, err := env.svc.MarkShipped(ctx, o.ID, "usr_seller", "TRK1", "dhl", "")
	if err != nil {
		t.Fatal(err)
	}
	if shipped.Status != StatusShipped || shipped.TrackingCode != "TRK1" || shipped.Carrier != "dhl" {
		t.Errorf("unexpected shipped order: %+v", shipped)
	}

	if _, err := env.svc.ConfirmDelivery(ctx, o.ID, "usr_seller", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-buyer confirm, got %v", err)
	}

	delivered, err := env.svc.ConfirmDelivery(ctx, o.ID, "usr_buyer", "")
	if err != nil {
		t.Fatal(err)
	}
	if delivered.Status != StatusDelivered {
		t.Errorf("expected DELIVERED, got %s", delivered.Status)
	}
	if delivered.CompletedAt == nil {
		t.Error("delivery must stamp CompletedAt")
	}
}

func TestMarkShippedByAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedUser(t, "usr_admin", user.RoleAdmin)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	env.payOrder(t, o.ID, "usr_buyer")

	shipped, err := env.svc.MarkShipped(ctx, o.ID, "usr_admin", "TRK9", "hermes", "")
	if err != nil {
		t.Fatal(err)
	}
	if shipped.Status != StatusShipped {
		t.Errorf("expected SHIPPED, got %s", shipped.Status)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := env.svc.Cancel(ctx, o.ID, "usr_buyer", "")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}
	if env.listingStatus(t, "lst_1") != listing.StatusActive {
		t.Error("cancellation must return the listing to ACTIVE")
	}

	// A cancelled order no longer blocks a repurchase.
	again, created, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !created || again.ID == o.ID {
		t.Error("expected a fresh order after cancellation")
	}
}

func TestCancelPaidOrderConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	env.payOrder(t, o.ID, "usr_buyer")

	_, err = env.svc.Cancel(ctx, o.ID, "usr_buyer", "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict cancelling a PAID order, got %v", err)
	}

	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatal("expected *ConflictError")
	}
	if ce.Actual != StatusPaid {
		t.Errorf("conflict must report the actual status, got %s", ce.Actual)
	}
}

func TestOpenDispute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "   ", ""); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("expected ErrReasonRequired, got %v", err)
	}

	// PENDING is not disputable.
	if _, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "kaputt", ""); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict disputing a PENDING order, got %v", err)
	}

	env.payOrder(t, o.ID, "usr_buyer")

	if _, err := env.svc.OpenDispute(ctx, o.ID, "usr_seller", "kaputt", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for the seller, got %v", err)
	}

	d, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "Artikel kam beschädigt an", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != DisputeOpen {
		t.Errorf("expected OPEN dispute, got %s", d.Status)
	}

	got, _ := env.store.Get(ctx, o.ID)
	if got.Status != StatusDisputed {
		t.Errorf("expected DISPUTED order, got %s", got.Status)
	}

	if _, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "nochmal", ""); !errors.Is(err, ErrDisputeExists) {
		t.Errorf("expected ErrDisputeExists, got %v", err)
	}
}

func TestResolveDisputeForBuyer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	env.payOrder(t, o.ID, "usr_buyer")
	d, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "nie angekommen", "")
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := env.svc.ResolveDispute(ctx, d.ID, DisputeResolvedBuyer)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != DisputeResolvedBuyer || resolved.ResolvedAt == nil {
		t.Errorf("unexpected resolved dispute: %+v", resolved)
	}

	got, _ := env.store.Get(ctx, o.ID)
	if got.Status != StatusRefunded {
		t.Errorf("buyer ruling must refund the order, got %s", got.Status)
	}
	if env.listingStatus(t, "lst_1") != listing.StatusActive {
		t.Error("buyer ruling must relist the item")
	}

	// A settled dispute cannot be resolved twice.
	if _, err := env.svc.ResolveDispute(ctx, d.ID, DisputeResolvedSeller); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome, got %v", err)
	}
}

func TestResolveDisputeForSeller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	env.payOrder(t, o.ID, "usr_buyer")
	d, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "gefällt mir nicht", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.ResolveDispute(ctx, d.ID, DisputeResolvedSeller); err != nil {
		t.Fatal(err)
	}

	got, _ := env.store.Get(ctx, o.ID)
	if got.Status != StatusCompleted {
		t.Errorf("seller ruling must complete the order, got %s", got.Status)
	}
	if env.listingStatus(t, "lst_1") != listing.StatusSold {
		t.Error("seller ruling must mark the listing SOLD")
	}

	payouts, err := env.audits.ListRecent(ctx, audit.ActionSellerPayout, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 1 {
		t.Fatalf("expected one payout audit entry, got %d", len(payouts))
	}
	if payouts[0].Meta["amountCents"] != int64(10000-240) {
		t.Errorf("payout must be total minus fee, got %v", payouts[0].Meta["amountCents"])
	}
}

func TestAutoReleaseSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_old", "usr_seller", 10000)
	env.seedListing(t, "lst_new", "usr_seller", 20000)

	deliver := func(listingID string) *Order {
		o, _, err := env.svc.Create(ctx, "usr_buyer", listingID, "")
		if err != nil {
			t.Fatal(err)
		}
		env.payOrder(t, o.ID, "usr_buyer")
		if _, err := env.svc.MarkShipped(ctx, o.ID, "usr_seller", "TRK", "dhl", ""); err != nil {
			t.Fatal(err)
		}
		if _, err := env.svc.ConfirmDelivery(ctx, o.ID, "usr_buyer", ""); err != nil {
			t.Fatal(err)
		}
		return o
	}

	old := deliver("lst_old")
	fresh := deliver("lst_new")

	// Backdate the first delivery past the release window.
	past := time.Now().Add(-72 * time.Hour)
	env.store.mu.Lock()
	env.store.orders[old.ID].CompletedAt = &past
	env.store.mu.Unlock()

	released, err := env.svc.RunAutoReleaseSweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if released != 1 {
		t.Fatalf("expected 1 release, got %d", released)
	}

	gotOld, _ := env.store.Get(ctx, old.ID)
	if gotOld.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", gotOld.Status)
	}
	if env.listingStatus(t, "lst_old") != listing.StatusSold {
		t.Error("released order must mark its listing SOLD")
	}

	gotFresh, _ := env.store.Get(ctx, fresh.ID)
	if gotFresh.Status != StatusDelivered {
		t.Errorf("fresh delivery must stay DELIVERED, got %s", gotFresh.Status)
	}

	releases, err := env.audits.ListRecent(ctx, audit.ActionOrderAutoReleased, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 {
		t.Errorf("expected one auto-release audit entry, got %d", len(releases))
	}
	payouts, _ := env.audits.ListRecent(ctx, audit.ActionSellerPayout, 10)
	if len(payouts) != 1 {
		t.Errorf("expected one payout audit entry, got %d", len(payouts))
	}

	// A second sweep finds nothing left.
	released, err = env.svc.RunAutoReleaseSweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if released != 0 {
		t.Errorf("second sweep must release nothing, got %d", released)
	}
}

func TestAutoReleaseSkipsDisputed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}
	env.payOrder(t, o.ID, "usr_buyer")
	if _, err := env.svc.MarkShipped(ctx, o.ID, "usr_seller", "TRK", "dhl", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.ConfirmDelivery(ctx, o.ID, "usr_buyer", ""); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-72 * time.Hour)
	env.store.mu.Lock()
	env.store.orders[o.ID].CompletedAt = &past
	env.store.mu.Unlock()

	if _, err := env.svc.OpenDispute(ctx, o.ID, "usr_buyer", "falscher Artikel", ""); err != nil {
		t.Fatal(err)
	}

	released, err := env.svc.RunAutoReleaseSweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if released != 0 {
		t.Errorf("disputed order must not auto-release, got %d", released)
	}
}

func TestGetAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedUser(t, "usr_other", user.RoleUser)
	env.seedUser(t, "usr_admin", user.RoleAdmin)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, actor := range []string{"usr_buyer", "usr_seller", "usr_admin"} {
		if _, err := env.svc.Get(ctx, o.ID, actor); err != nil {
			t.Errorf("%s should see the order, got %v", actor, err)
		}
	}
	if _, err := env.svc.Get(ctx, o.ID, "usr_other"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for a stranger, got %v", err)
	}
}

func TestListMine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)
	env.seedListing(t, "lst_2", "usr_seller", 20000)

	if _, _, err := env.svc.Create(ctx, "usr_buyer", "lst_1", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.svc.Create(ctx, "usr_buyer", "lst_2", ""); err != nil {
		t.Fatal(err)
	}

	mine, err := env.svc.ListMine(ctx, "usr_buyer", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 orders for the buyer, got %d", len(mine))
	}

	sellerSide, err := env.svc.ListMine(ctx, "usr_seller", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sellerSide) != 2 {
		t.Errorf("seller must see orders on their listings, got %d", len(sellerSide))
	}

	none, err := env.svc.ListMine(ctx, "usr_nobody", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no orders, got %d", len(none))
	}
}
