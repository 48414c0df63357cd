package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/listing"
)

// MemoryStore is an in-memory order store for demo/development mode.
// A single mutex covers orders, payments, and disputes, which makes the
// multi-step operations trivially atomic.
type MemoryStore struct {
	orders           map[string]*Order
	payments         map[string]*Payment // by payment ID
	paymentsByOrder  map[string]string
	paymentsByIntent map[string]string
	disputes         map[string]*Dispute // by dispute ID
	disputesByOrder  map[string]string

	listings ListingMutator
	audits   audit.Store
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory order store.
func NewMemoryStore(listings ListingMutator, audits audit.Store) *MemoryStore {
	return &MemoryStore{
		orders:           make(map[string]*Order),
		payments:         make(map[string]*Payment),
		paymentsByOrder:  make(map[string]string),
		paymentsByIntent: make(map[string]string),
		disputes:         make(map[string]*Dispute),
		disputesByOrder:  make(map[string]string),
		listings:         listings,
		audits:           audits,
	}
}

func (m *MemoryStore) CreateReserving(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.listings.ReserveIfActive(ctx, o.ListingID); err != nil {
		return err
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(id)
}

func (m *MemoryStore) get(id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) FindActiveByBuyerAndListing(ctx context.Context, buyerID, listingID string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orders {
		if o.BuyerID == buyerID && o.ListingID == listingID && o.Active() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *MemoryStore) Transition(ctx context.Context, from Status, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Status != from {
		return &ConflictError{Actual: stored.Status, Expected: []Status{from}}
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) CancelReleasing(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Status != StatusPending {
		return &ConflictError{Actual: stored.Status, Expected: []Status{StatusPending}}
	}
	cp := *o
	m.orders[o.ID] = &cp
	return m.listings.SetStatus(ctx, o.ListingID, listing.StatusActive)
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, o := range m.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			cp := *o
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.payments[p.ID] = &cp
	m.paymentsByOrder[p.OrderID] = p.ID
	m.paymentsByIntent[p.IntentID] = p.ID
	return nil
}

func (m *MemoryStore) GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.paymentsByOrder[orderID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *MemoryStore) MarkPaid(ctx context.Context, orderID, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if id, ok := m.paymentsByIntent[intentID]; ok {
		p := m.payments[id]
		p.Status = PaymentSucceeded
		p.UpdatedAt = now
	}
	if o, ok := m.orders[orderID]; ok && o.Status == StatusPending {
		o.Status = StatusPaid
		o.UpdatedAt = now
	}
	return nil
}

func (m *MemoryStore) MarkPaymentFailed(ctx context.Context, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.paymentsByIntent[intentID]; ok {
		p := m.payments[id]
		p.Status = PaymentFailed
		p.UpdatedAt = time.Now()
	}
	return nil
}

var disputableStates = []Status{StatusPaid, StatusShipped, StatusDelivered}

func (m *MemoryStore) CreateDispute(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[d.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	if _, exists := m.disputesByOrder[d.OrderID]; exists {
		return ErrDisputeExists
	}
	if !CanTransition(o.Status, StatusDisputed) {
		return &ConflictError{Actual: o.Status, Expected: disputableStates}
	}

	cp := *d
	m.disputes[d.ID] = &cp
	m.disputesByOrder[d.OrderID] = d.ID
	o.Status = StatusDisputed
	o.UpdatedAt = d.CreatedAt
	return nil
}

func (m *MemoryStore) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) GetDisputeByOrder(ctx context.Context, orderID string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.disputesByOrder[orderID]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *m.disputes[id]
	return &cp, nil
}

func (m *MemoryStore) ResolveDispute(ctx context.Context, d *Dispute, orderStatus Status, listingStatus listing.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.disputes[d.ID]
	if !ok {
		return ErrDisputeNotFound
	}
	o, ok := m.orders[stored.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !CanTransition(o.Status, orderStatus) {
		return &ConflictError{Actual: o.Status, Expected: []Status{StatusDisputed}}
	}

	cp := *d
	m.disputes[d.ID] = &cp
	o.Status = orderStatus
	o.UpdatedAt = time.Now()
	return m.listings.SetStatus(ctx, o.ListingID, listingStatus)
}

func (m *MemoryStore) ListAutoReleasable(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, o := range m.orders {
		if o.Status != StatusDelivered || o.CompletedAt == nil || o.CompletedAt.After(before) {
			continue
		}
		if _, disputed := m.disputesByOrder[o.ID]; disputed {
			continue
		}
		cp := *o
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) AutoRelease(ctx context.Context, orderID string, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != StatusDelivered {
		return &ConflictError{Actual: o.Status, Expected: []Status{StatusDelivered}}
	}
	o.Status = StatusCompleted
	o.UpdatedAt = time.Now()
	if err := m.listings.SetStatus(ctx, o.ListingID, listing.StatusSold); err != nil {
		return err
	}
	return m.audits.Append(ctx, entry)
}

func (m *MemoryStore) CountByBuyer(ctx context.Context, buyerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountCompletedBySeller(ctx context.Context, sellerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, o := range m.orders {
		if o.SellerID == sellerID && o.Status == StatusCompleted {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountOpenDisputesBySeller(ctx context.Context, sellerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, d := range m.disputes {
		if d.Status == DisputeClosed || d.Status == DisputeResolvedSeller {
			continue
		}
		if o, ok := m.orders[d.OrderID]; ok && o.SellerID == sellerID {
			count++
		}
	}
	return count, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
