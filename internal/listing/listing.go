// Package listing provides the listing entity the order flow and fraud
// engine operate on.
//
// Full listing CRUD (search indexing, images, editing) lives in the outer
// API layer; the core only needs creation with its abuse gates plus the
// status flips the order state machine performs.
package listing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrListingNotFound    = errors.New("listing not found")
	ErrListingUnavailable = errors.New("listing is not available")
)

// Status represents the lifecycle state of a listing.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReserved Status = "RESERVED" // an order holds this listing
	StatusSold     Status = "SOLD"
	StatusRemoved  Status = "REMOVED"
)

// Category identifies a listing's category.
type Category string

// Category buckets used for the low-price fraud heuristic.
const (
	CategoryElektronik Category = "ELEKTRONIK"
	CategoryFahrzeuge  Category = "FAHRZEUGE"
	CategoryMode       Category = "MODE"
	CategoryMoebel     Category = "MOEBEL"
	CategorySport      Category = "SPORT"
	CategoryHaushalt   Category = "HAUSHALT"
	CategoryBuecher    Category = "BUCHER"
	CategorySpielzeug  Category = "SPIELZEUG"
	CategorySonstiges  Category = "SONSTIGES"
)

// Listing represents an item offered for sale.
type Listing struct {
	ID         string    `json:"id"`
	SellerID   string    `json:"sellerId"`
	Title      string    `json:"title"`
	Category   Category  `json:"category"`
	PriceCents int64     `json:"priceCents"`
	Currency   string    `json:"currency"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists listings.
type Store interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	// ReserveIfActive flips ACTIVE → RESERVED, failing with
	// ErrListingUnavailable when the listing is in any other state.
	ReserveIfActive(ctx context.Context, id string) error
	// SetStatus sets the listing status unconditionally (sweep → SOLD,
	// cancellation → back to ACTIVE).
	SetStatus(ctx context.Context, id string, status Status) error
	// CountBySellerSince counts listings created by a seller after the
	// given time (too-many-listings fraud rule).
	CountBySellerSince(ctx context.Context, sellerID string, since time.Time) (int, error)
}
