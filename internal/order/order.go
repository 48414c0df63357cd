// Package order implements the purchase lifecycle state machine.
//
// An order moves PENDING → PAID → SHIPPED → DELIVERED → COMPLETED, with
// a DISPUTED side branch out of the paid states and CANCELLED/REFUNDED
// as terminal failure states. Every transition and its paired side
// effects (listing status, payment record, dispute row, audit entry)
// execute as one atomic unit against the backing store.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/listing"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrDisputeExists   = errors.New("a dispute already exists for this order")
	ErrForbidden       = errors.New("not authorized for this order")
	ErrSelfPurchase    = errors.New("cannot buy your own listing")
	ErrReasonRequired  = errors.New("dispute reason is required")
	ErrInvalidOutcome  = errors.New("invalid dispute outcome")

	// ErrConflict is the base of every illegal-transition error. Use
	// errors.As with *ConflictError to read the actual vs expected states.
	ErrConflict = errors.New("order is not in the required state")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusDisputed  Status = "DISPUTED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// transitions is the single source of truth for legal state changes.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusDisputed},
	StatusShipped:   {StatusDelivered, StatusDisputed},
	StatusDelivered: {StatusCompleted, StatusDisputed},
	StatusDisputed:  {StatusCompleted, StatusRefunded},
	StatusCompleted: nil,
	StatusCancelled: nil,
	StatusRefunded:  nil,
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// ConflictError reports an order found in the wrong state for the
// requested transition. It unwraps to ErrConflict.
type ConflictError struct {
	Actual   Status
	Expected []Status
}

func (e *ConflictError) Error() string {
	if len(e.Expected) == 1 {
		return fmt.Sprintf("order status is %s, expected %s", e.Actual, e.Expected[0])
	}
	return fmt.Sprintf("order status is %s, expected one of %v", e.Actual, e.Expected)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Order is a buyer's purchase of a listing.
type Order struct {
	ID           string     `json:"id"`
	ListingID    string     `json:"listingId"`
	BuyerID      string     `json:"buyerId"`
	SellerID     string     `json:"sellerId"`
	Status       Status     `json:"status"`
	TotalAmount  int64      `json:"totalAmount"` // cents
	FeeCents     int64      `json:"feeCents"`
	Currency     string     `json:"currency"`
	TrackingCode string     `json:"trackingCode,omitempty"`
	Carrier      string     `json:"carrier,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"` // delivery confirmation, starts the release window
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Active reports whether the order still blocks a new purchase of the
// same listing by the same buyer.
func (o *Order) Active() bool {
	return o.Status != StatusCancelled && o.Status != StatusRefunded
}

// PaymentStatus is the state of the provider-side payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment links an order to its provider payment intent.
type Payment struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"orderId"`
	Provider    string        `json:"provider"`
	IntentID    string        `json:"intentId"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amountCents"`
	Currency    string        `json:"currency"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// DisputeStatus is the state of a dispute.
type DisputeStatus string

const (
	DisputeOpen           DisputeStatus = "OPEN"
	DisputeResolvedBuyer  DisputeStatus = "RESOLVED_BUYER"
	DisputeResolvedSeller DisputeStatus = "RESOLVED_SELLER"
	DisputeClosed         DisputeStatus = "CLOSED"
)

// Dispute is a buyer's contest of an order. At most one per order.
type Dispute struct {
	ID         string        `json:"id"`
	OrderID    string        `json:"orderId"`
	OpenedByID string        `json:"openedById"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
}

// ListingMutator is the slice of the listing store the order flow needs
// for its paired listing side effects.
type ListingMutator interface {
	ReserveIfActive(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status listing.Status) error
}

// Store persists orders, payments, and disputes. Methods that pair a
// transition with a side effect are atomic: either everything is
// applied or nothing is.
type Store interface {
	// CreateReserving inserts the order and flips its listing
	// ACTIVE → RESERVED in one unit. Fails with
	// listing.ErrListingUnavailable when the listing is not ACTIVE.
	CreateReserving(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// FindActiveByBuyerAndListing returns the buyer's non-terminated
	// order for the listing, or ErrOrderNotFound.
	FindActiveByBuyerAndListing(ctx context.Context, buyerID, listingID string) (*Order, error)
	// Transition persists o, which must have moved from the given source
	// status. Fails with *ConflictError if the stored row is elsewhere.
	Transition(ctx context.Context, from Status, o *Order) error
	// CancelReleasing cancels a PENDING order and returns its listing to
	// ACTIVE in one unit.
	CancelReleasing(ctx context.Context, o *Order) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Order, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error)
	// MarkPaid records the provider success: payment → SUCCEEDED and
	// order PENDING → PAID, atomically. An order no longer PENDING is
	// left untouched (webhook retries).
	MarkPaid(ctx context.Context, orderID, intentID string) error
	// MarkPaymentFailed records a failed payment without moving the order.
	MarkPaymentFailed(ctx context.Context, intentID string) error

	// CreateDispute inserts the dispute and moves the order to DISPUTED
	// in one unit. Fails with *ConflictError when the order is not
	// disputable, ErrDisputeExists when one already exists.
	CreateDispute(ctx context.Context, d *Dispute) error
	GetDispute(ctx context.Context, id string) (*Dispute, error)
	GetDisputeByOrder(ctx context.Context, orderID string) (*Dispute, error)
	// ResolveDispute updates the dispute and applies the resulting order
	// status and listing status in one unit.
	ResolveDispute(ctx context.Context, d *Dispute, orderStatus Status, listingStatus listing.Status) error

	// ListAutoReleasable returns DELIVERED orders whose delivery
	// confirmation is older than before and which have no dispute.
	ListAutoReleasable(ctx context.Context, before time.Time, limit int) ([]*Order, error)
	// AutoRelease moves DELIVERED → COMPLETED, marks the listing SOLD,
	// and appends the audit entry in one unit. Fails with *ConflictError
	// if the order left DELIVERED.
	AutoRelease(ctx context.Context, orderID string, entry *audit.Entry) error

	CountByBuyer(ctx context.Context, buyerID string) (int, error)
	CountCompletedBySeller(ctx context.Context, sellerID string) (int, error)
	// CountOpenDisputesBySeller counts disputes on the seller's orders
	// that are neither CLOSED nor RESOLVED_SELLER.
	CountOpenDisputesBySeller(ctx context.Context, sellerID string) (int, error)
}
