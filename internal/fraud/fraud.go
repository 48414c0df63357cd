// Package fraud provides rule-based fraud signal detection.
//
// Rules run after key events (listing created, conversation started,
// failed login, blocked message) and append FraudSignal records for the
// admin review queue. Signals never block the triggering operation; they
// lower the user's trust score until resolved.
package fraud

import (
	"context"
	"errors"
	"time"
)

var ErrSignalNotFound = errors.New("fraud signal not found")

// Severity ranks how strongly a signal should weigh against a user.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Signal types produced by the engine.
const (
	TypeTooManyListings   = "TOO_MANY_LISTINGS"
	TypeLowPrice          = "SUSPICIOUSLY_LOW_PRICE"
	TypeChatWithoutOrders = "CHAT_WITHOUT_ORDERS"
	TypeFailedLogins      = "MANY_FAILED_LOGINS"
	TypeFailedLoginsIP    = "MANY_FAILED_LOGINS_IP"
	TypeFrequentBlocks    = "FREQUENT_MSG_BLOCKS"
)

// Signal is a single fraud detection hit.
type Signal struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId,omitempty"` // empty for IP-only signals
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
}

// Resolved reports whether an admin has closed the signal.
func (s *Signal) Resolved() bool {
	return s.ResolvedAt != nil
}

// Store persists fraud signals.
type Store interface {
	Create(ctx context.Context, s *Signal) error
	Get(ctx context.Context, id string) (*Signal, error)
	// FindUnresolved returns an open signal of the given type for the
	// user, or ErrSignalNotFound. Used for deduplication.
	FindUnresolved(ctx context.Context, userID, sigType string) (*Signal, error)
	// Resolve closes a signal. Resolving an already closed signal is a no-op.
	Resolve(ctx context.Context, id string, at time.Time) error
	// ListUnresolved returns open signals, newest first (review queue).
	ListUnresolved(ctx context.Context, limit int) ([]*Signal, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Signal, error)
	// UnresolvedSeverityCounts returns how many open HIGH and CRITICAL
	// signals the user has (trust score input).
	UnresolvedSeverityCounts(ctx context.Context, userID string) (high, critical int, err error)
}
