// Package audit provides the append-only behavioral event log.
//
// Every significant user action (order transitions, blocked messages,
// failed logins, admin actions) is appended here. The fraud engine reads
// recent history from this log; entries are never updated or deleted.
package audit

import (
	"context"
	"time"

	"github.com/novamarkt/platform/internal/idgen"
)

// Well-known actions recorded by the core.
const (
	ActionOrderCreate       = "order_create"
	ActionOrderShipped      = "order_shipped"
	ActionOrderDelivered    = "order_delivered"
	ActionOrderAutoReleased = "order_auto_released"
	ActionOrderCancelled    = "order_cancelled"
	ActionDisputeOpened     = "dispute_opened"
	ActionIntentCreated     = "payment_intent_created"
	ActionPaymentSucceeded  = "payment_succeeded"
	ActionSellerPayout      = "seller_payout"
	ActionPaymentFailed     = "payment_failed"
	ActionFailedLogin       = "failed_login"
	ActionMessageSend       = "message_send"
	ActionMessageBlocked    = "message_blocked"
	ActionListingCreate     = "listing_create"
	ActionUserRegister      = "user_register"
	ActionUserVerified      = "user_verified"
)

// Entry is a single append-only audit record.
type Entry struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actorId,omitempty"` // empty for system events
	Action    string         `json:"action"`
	IP        string         `json:"ip,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// CountByActorSince counts entries with the given actor and action newer than since.
	CountByActorSince(ctx context.Context, actorID, action string, since time.Time) (int, error)
	// CountByIPSince counts entries with the given IP and action newer than since.
	CountByIPSince(ctx context.Context, ip, action string, since time.Time) (int, error)
	// ListRecent returns the most recent entries, newest first, optionally
	// filtered by action ("" matches all).
	ListRecent(ctx context.Context, action string, limit int) ([]*Entry, error)
}

// Record appends a new entry with a generated ID and timestamp.
// Convenience wrapper so call sites don't build Entry structs by hand.
func Record(ctx context.Context, store Store, actorID, action, ip string, meta map[string]any) error {
	return store.Append(ctx, &Entry{
		ID:        idgen.WithPrefix("aud_"),
		ActorID:   actorID,
		Action:    action,
		IP:        ip,
		Meta:      meta,
		CreatedAt: time.Now(),
	})
}
