package trust

import (
	"context"
	"errors"
	"time"

	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/metrics"
	"github.com/novamarkt/platform/internal/user"
)

// OrderFacts reads order history for scoring.
type OrderFacts interface {
	CountCompletedBySeller(ctx context.Context, sellerID string) (int, error)
	CountOpenDisputesBySeller(ctx context.Context, sellerID string) (int, error)
}

// SignalFacts reads open fraud signal counts for scoring.
type SignalFacts interface {
	UnresolvedSeverityCounts(ctx context.Context, userID string) (high, critical int, err error)
}

// Service computes and persists trust snapshots.
type Service struct {
	users     user.Store
	orders    OrderFacts
	signals   SignalFacts
	snapshots SnapshotStore
}

// NewService creates a trust service.
func NewService(users user.Store, orders OrderFacts, signals SignalFacts, snapshots SnapshotStore) *Service {
	return &Service{users: users, orders: orders, signals: signals, snapshots: snapshots}
}

// Compute calculates a fresh snapshot without persisting it. An unknown
// user scores zero rather than erroring, matching what callers need when
// scoring half-deleted accounts.
func (s *Service) Compute(ctx context.Context, userID string) (*Snapshot, error) {
	now := time.Now()

	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, user.ErrUserNotFound) {
		return &Snapshot{
			UserID: userID, Score: 0, Level: LevelNew,
			Factors: map[string]int{}, CalculatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	completed, err := s.orders.CountCompletedBySeller(ctx, userID)
	if err != nil {
		return nil, err
	}
	openDisputes, err := s.orders.CountOpenDisputesBySeller(ctx, userID)
	if err != nil {
		return nil, err
	}
	high, critical, err := s.signals.UnresolvedSeverityCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	score, level, factors := Compute(Inputs{
		EmailVerified:      u.EmailVerified,
		PhoneVerified:      u.PhoneVerified,
		IDVerified:         u.IDVerified,
		AccountAge:         u.AccountAge(now),
		Banned:             u.IsBanned(),
		CompletedSales:     completed,
		UnresolvedHigh:     high,
		UnresolvedCritical: critical,
		OpenSellerDisputes: openDisputes,
	})
	return &Snapshot{
		UserID:       userID,
		Score:        score,
		Level:        level,
		Factors:      factors,
		CalculatedAt: now,
	}, nil
}

// Refresh recomputes the snapshot and persists it. This is the only
// writer of the snapshot store.
func (s *Service) Refresh(ctx context.Context, userID string) (*Snapshot, error) {
	snap, err := s.Compute(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return nil, err
	}
	metrics.TrustRecomputesTotal.Inc()
	logging.L(ctx).Debug("trust score refreshed",
		"user_id", userID,
		"score", snap.Score,
		"level", string(snap.Level),
	)
	return snap, nil
}

// Get returns the stored snapshot, computing and persisting one on first
// access.
func (s *Service) Get(ctx context.Context, userID string) (*Snapshot, error) {
	snap, err := s.snapshots.Get(ctx, userID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return s.Refresh(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListingDayLimit returns the user's per-day listing ceiling.
func (s *Service) ListingDayLimit(ctx context.Context, userID string) (int, error) {
	snap, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return ListingDayLimitFor(snap.Level), nil
}
