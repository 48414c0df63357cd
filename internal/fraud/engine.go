package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/idgen"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/metrics"
)

// Rule thresholds. All time windows are one hour.
const (
	detectionWindow          = time.Hour
	maxListingsPerWindow     = 5
	lowPriceRatio            = 0.3
	chatConversationMinimum  = 10
	failedLoginUserThreshold = 5
	failedLoginIPThreshold   = 10
	messageBlockThreshold    = 5
)

// defaultCategoryMedians holds rough market price medians per listing
// category, in cents. Used by the suspiciously-low-price rule.
var defaultCategoryMedians = map[string]int64{
	"ELEKTRONIK": 15000,
	"FAHRZEUGE":  500000,
	"MODE":       2500,
	"MOEBEL":     10000,
	"SPORT":      8000,
	"HAUSHALT":   5000,
	"BUCHER":     1000,
	"SPIELZEUG":  2000,
	"SONSTIGES":  5000,
}

const fallbackMedianCents int64 = 5000

// ListingCounter counts recent listings per seller.
type ListingCounter interface {
	CountBySellerSince(ctx context.Context, sellerID string, since time.Time) (int, error)
}

// ConversationCounter counts conversations started by a buyer.
type ConversationCounter interface {
	CountByBuyer(ctx context.Context, buyerID string) (int, error)
}

// OrderCounter counts orders placed by a buyer.
type OrderCounter interface {
	CountByBuyer(ctx context.Context, buyerID string) (int, error)
}

// AuditCounter reads recent events from the audit log.
type AuditCounter interface {
	CountByActorSince(ctx context.Context, actorID, action string, since time.Time) (int, error)
	CountByIPSince(ctx context.Context, ip, action string, since time.Time) (int, error)
}

// Engine evaluates the fraud rules. All Check methods are best effort:
// evaluation or persistence errors are logged and never propagated to the
// triggering operation.
type Engine struct {
	store         Store
	audits        AuditCounter
	listings      ListingCounter
	conversations ConversationCounter
	orders        OrderCounter
	medians       map[string]int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithMedians overrides the category price medians (tests, market tuning).
func WithMedians(m map[string]int64) Option {
	return func(e *Engine) { e.medians = m }
}

// NewEngine creates a fraud engine.
func NewEngine(store Store, audits AuditCounter, listings ListingCounter, conversations ConversationCounter, orders OrderCounter, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		audits:        audits,
		listings:      listings,
		conversations: conversations,
		orders:        orders,
		medians:       defaultCategoryMedians,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckListing runs the listing rules: too many listings in the window
// and price far below the category median.
func (e *Engine) CheckListing(ctx context.Context, sellerID string, priceCents int64, category string) {
	since := time.Now().Add(-detectionWindow)

	recent, err := e.listings.CountBySellerSince(ctx, sellerID, since)
	if err != nil {
		logging.L(ctx).Error("fraud listing count failed", "user_id", sellerID, "error", err)
	} else if recent > maxListingsPerWindow {
		e.createSignal(ctx, sellerID, TypeTooManyListings, SeverityMedium, map[string]any{
			"recentCount": recent,
			"window":      "1h",
		})
	}

	median, ok := e.medians[category]
	if !ok {
		median = fallbackMedianCents
	}
	if priceCents > 0 && float64(priceCents) < float64(median)*lowPriceRatio {
		e.createSignal(ctx, sellerID, TypeLowPrice, SeverityHigh, map[string]any{
			"priceCents": priceCents,
			"category":   category,
			"median":     median,
			"ratio":      fmt.Sprintf("%.2f", float64(priceCents)/float64(median)),
		})
	}
}

// CheckConversation flags buyers who open many chats without ever ordering.
func (e *Engine) CheckConversation(ctx context.Context, buyerID string) {
	convCount, err := e.conversations.CountByBuyer(ctx, buyerID)
	if err != nil {
		logging.L(ctx).Error("fraud conversation count failed", "user_id", buyerID, "error", err)
		return
	}
	orderCount, err := e.orders.CountByBuyer(ctx, buyerID)
	if err != nil {
		logging.L(ctx).Error("fraud order count failed", "user_id", buyerID, "error", err)
		return
	}
	if convCount > chatConversationMinimum && orderCount == 0 {
		e.createSignal(ctx, buyerID, TypeChatWithoutOrders, SeverityMedium, map[string]any{
			"convCount":  convCount,
			"orderCount": orderCount,
		})
	}
}

// CheckFailedLogin runs the failed-login rules. The per-IP rule fires
// even without a known user and deliberately allows duplicate signals;
// the per-user rule deduplicates like the others.
func (e *Engine) CheckFailedLogin(ctx context.Context, userID, ip string) {
	since := time.Now().Add(-detectionWindow)

	ipCount, err := e.audits.CountByIPSince(ctx, ip, audit.ActionFailedLogin, since)
	if err != nil {
		logging.L(ctx).Error("fraud ip login count failed", "ip", ip, "error", err)
	} else if ipCount > failedLoginIPThreshold {
		s := &Signal{
			ID:        idgen.WithPrefix("sig_"),
			UserID:    userID,
			Type:      TypeFailedLoginsIP,
			Severity:  SeverityHigh,
			Meta:      map[string]any{"ip": ip, "count": ipCount},
			CreatedAt: time.Now(),
		}
		if err := e.store.Create(ctx, s); err != nil {
			logging.L(ctx).Warn("fraud ip signal insert failed", "ip", ip, "error", err)
		} else {
			metrics.FraudSignalsTotal.WithLabelValues(TypeFailedLoginsIP).Inc()
		}
	}

	if userID == "" {
		return
	}
	userCount, err := e.audits.CountByActorSince(ctx, userID, audit.ActionFailedLogin, since)
	if err != nil {
		logging.L(ctx).Error("fraud user login count failed", "user_id", userID, "error", err)
		return
	}
	if userCount > failedLoginUserThreshold {
		e.createSignal(ctx, userID, TypeFailedLogins, SeverityHigh, map[string]any{
			"count":  userCount,
			"window": "1h",
		})
	}
}

// CheckMessageBlock flags senders who repeatedly trip the message filter.
func (e *Engine) CheckMessageBlock(ctx context.Context, userID string) {
	since := time.Now().Add(-detectionWindow)
	blockCount, err := e.audits.CountByActorSince(ctx, userID, audit.ActionMessageBlocked, since)
	if err != nil {
		logging.L(ctx).Error("fraud block count failed", "user_id", userID, "error", err)
		return
	}
	if blockCount > messageBlockThreshold {
		e.createSignal(ctx, userID, TypeFrequentBlocks, SeverityMedium, map[string]any{
			"blockCount": blockCount,
			"window":     "1h",
		})
	}
}

// createSignal appends a signal unless an unresolved one of the same type
// already exists for the user.
func (e *Engine) createSignal(ctx context.Context, userID, sigType string, severity Severity, meta map[string]any) {
	_, err := e.store.FindUnresolved(ctx, userID, sigType)
	if err == nil {
		return // open signal of this type already exists
	}
	if !errors.Is(err, ErrSignalNotFound) {
		logging.L(ctx).Error("fraud dedup lookup failed", "user_id", userID, "type", sigType, "error", err)
		return
	}

	s := &Signal{
		ID:        idgen.WithPrefix("sig_"),
		UserID:    userID,
		Type:      sigType,
		Severity:  severity,
		Meta:      meta,
		CreatedAt: time.Now(),
	}
	if err := e.store.Create(ctx, s); err != nil {
		logging.L(ctx).Error("fraud signal insert failed", "user_id", userID, "type", sigType, "error", err)
		return
	}
	metrics.FraudSignalsTotal.WithLabelValues(sigType).Inc()
	logging.L(ctx).Warn("fraud signal created",
		"signal_id", s.ID,
		"user_id", userID,
		"type", sigType,
		"severity", string(severity),
	)
}
