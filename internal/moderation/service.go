package moderation

import (
	"context"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/metrics"
)

// BlockedError is returned when a message trips the filter. The reason is
// shown to the sender.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return e.Reason
}

// FraudChecker reacts to repeated filter hits by the same sender.
type FraudChecker interface {
	CheckMessageBlock(ctx context.Context, userID string)
}

// Service wraps the filter with its side effects. A blocked message is
// audited and counted against the sender; it is never persisted.
type Service struct {
	fraud  FraudChecker
	audits audit.Store
}

// NewService creates a moderation service.
func NewService(fraud FraudChecker, audits audit.Store) *Service {
	return &Service{fraud: fraud, audits: audits}
}

// Review evaluates a message body before it is stored. It returns a
// *BlockedError when the message must be rejected, recording the block
// and feeding the frequent-blocks fraud rule.
func (s *Service) Review(ctx context.Context, senderID, ip, body string) error {
	res := Evaluate(body)
	if !res.Blocked {
		return nil
	}

	_ = audit.Record(ctx, s.audits, senderID, audit.ActionMessageBlocked, ip, map[string]any{
		"reason": res.Reason,
	})
	metrics.MessagesBlockedTotal.Inc()
	s.fraud.CheckMessageBlock(ctx, senderID)

	logging.L(ctx).Info("message blocked",
		"sender_id", senderID,
		"reason", res.Reason,
	)
	return &BlockedError{Reason: res.Reason}
}
