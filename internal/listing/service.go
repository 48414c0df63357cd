package listing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/idgen"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/metrics"
	"github.com/novamarkt/platform/internal/user"
)

var (
	ErrSellerBanned      = errors.New("seller account is banned")
	ErrDailyLimitReached = errors.New("daily listing limit reached")
	ErrInvalidInput      = errors.New("invalid listing input")
)

// DailyLimitError reports a hit listing ceiling and when the day window
// resets, so handlers can surface a retry-after hint.
type DailyLimitError struct {
	Limit   int
	ResetAt time.Time
}

func (e *DailyLimitError) Error() string { return ErrDailyLimitReached.Error() }

func (e *DailyLimitError) Unwrap() error { return ErrDailyLimitReached }

// QuotaSource resolves how many listings a seller may create per day.
// The ceiling depends on the seller's trust level.
type QuotaSource interface {
	ListingDayLimit(ctx context.Context, userID string) (int, error)
}

// FraudChecker evaluates a freshly created listing for abuse patterns.
type FraudChecker interface {
	CheckListing(ctx context.Context, sellerID string, priceCents int64, category string)
}

// Service implements listing creation with its abuse gates.
type Service struct {
	store  Store
	users  user.Store
	quotas QuotaSource
	fraud  FraudChecker
	audits audit.Store
}

// NewService creates a listing service.
func NewService(store Store, users user.Store, quotas QuotaSource, fraud FraudChecker, audits audit.Store) *Service {
	return &Service{store: store, users: users, quotas: quotas, fraud: fraud, audits: audits}
}

// CreateInput is the caller-supplied part of a new listing.
type CreateInput struct {
	Title      string   `json:"title"`
	Category   Category `json:"category"`
	PriceCents int64    `json:"priceCents"`
	Currency   string   `json:"currency"`
}

func (in *CreateInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidInput
	}
	if in.PriceCents <= 0 {
		return ErrInvalidInput
	}
	if in.Category == "" {
		in.Category = CategorySonstiges
	}
	if in.Currency == "" {
		in.Currency = "EUR"
	}
	return nil
}

// Create creates a listing for the seller after checking the ban state
// and the trust-level daily ceiling. The fraud engine inspects the new
// listing afterwards; a flagged listing is still created, signals only
// queue it for review.
func (s *Service) Create(ctx context.Context, sellerID, ip string, in CreateInput) (*Listing, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	seller, err := s.users.Get(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if seller.IsBanned() {
		return nil, ErrSellerBanned
	}

	limit, err := s.quotas.ListingDayLimit(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	created, err := s.store.CountBySellerSince(ctx, sellerID, dayStart)
	if err != nil {
		return nil, err
	}
	if created >= limit {
		return nil, &DailyLimitError{Limit: limit, ResetAt: dayStart.AddDate(0, 0, 1)}
	}

	l := &Listing{
		ID:         idgen.WithPrefix("lst_"),
		SellerID:   sellerID,
		Title:      strings.TrimSpace(in.Title),
		Category:   in.Category,
		PriceCents: in.PriceCents,
		Currency:   in.Currency,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, l); err != nil {
		return nil, err
	}

	s.fraud.CheckListing(ctx, sellerID, l.PriceCents, string(l.Category))

	audit.Record(ctx, s.audits, sellerID, audit.ActionListingCreate, ip, map[string]any{
		"listingId":  l.ID,
		"priceCents": l.PriceCents,
		"category":   string(l.Category),
	})
	metrics.ListingsCreatedTotal.Inc()

	logging.L(ctx).Info("listing created",
		"listing_id", l.ID,
		"seller_id", sellerID,
		"price_cents", l.PriceCents,
	)
	return l, nil
}

// Get returns a listing by ID.
func (s *Service) Get(ctx context.Context, id string) (*Listing, error) {
	return s.store.Get(ctx, id)
}
