// Package trust computes per-user trust scores and levels.
//
// The score is a pure function of verification state, account age,
// completed sales, open fraud signals, and open disputes. It is
// recomputed after relevant events and persisted as a snapshot; reads
// always hit the snapshot, never the live computation.
package trust

import (
	"context"
	"errors"
	"time"
)

var ErrSnapshotNotFound = errors.New("trust snapshot not found")

// Level buckets a score into a named tier.
type Level string

const (
	LevelNew      Level = "NEW"
	LevelBasic    Level = "BASIC"
	LevelVerified Level = "VERIFIED"
	LevelTrusted  Level = "TRUSTED"
	LevelElite    Level = "ELITE"
)

// levelThresholds maps scores to levels, checked top down.
var levelThresholds = []struct {
	level Level
	min   int
}{
	{LevelElite, 85},
	{LevelTrusted, 65},
	{LevelVerified, 40},
	{LevelBasic, 15},
	{LevelNew, 0},
}

// LevelFor returns the level for a score.
func LevelFor(score int) Level {
	for _, t := range levelThresholds {
		if score >= t.min {
			return t.level
		}
	}
	return LevelNew
}

// Factor point values.
const (
	pointsEmailVerified   = 20
	pointsPhoneVerified   = 25
	pointsIDVerified      = 30
	pointsAge6Months      = 15
	pointsAge30Days       = 10
	pointsPerSale         = 2
	maxSaleBonus          = 10
	penaltyPerDispute     = 10
	penaltyHighSignal     = 15
	penaltyCriticalSignal = 25
)

// Inputs are the raw facts a score is computed from.
type Inputs struct {
	EmailVerified bool
	PhoneVerified bool
	IDVerified    bool
	AccountAge    time.Duration
	Banned        bool

	CompletedSales     int // orders completed as seller
	UnresolvedHigh     int // open HIGH fraud signals
	UnresolvedCritical int // open CRITICAL fraud signals
	OpenSellerDisputes int
}

// Snapshot is the persisted result of a score computation.
type Snapshot struct {
	UserID       string         `json:"userId"`
	Score        int            `json:"score"`
	Level        Level          `json:"level"`
	Factors      map[string]int `json:"factors"`
	CalculatedAt time.Time      `json:"calculatedAt"`
}

// Compute derives score, level, and the factor breakdown from inputs.
// A ban zeroes the score but leaves the factors visible for admins.
// The score is clamped to [0, 100].
func Compute(in Inputs) (int, Level, map[string]int) {
	factors := map[string]int{}
	score := 0

	if in.EmailVerified {
		factors["email_verified"] = pointsEmailVerified
		score += pointsEmailVerified
	}
	if in.PhoneVerified {
		factors["phone_verified"] = pointsPhoneVerified
		score += pointsPhoneVerified
	}
	if in.IDVerified {
		factors["id_verified"] = pointsIDVerified
		score += pointsIDVerified
	}

	ageDays := in.AccountAge.Hours() / 24
	if ageDays > 180 {
		factors["account_age_6m"] = pointsAge6Months
		score += pointsAge6Months
	} else if ageDays > 30 {
		factors["account_age_30d"] = pointsAge30Days
		score += pointsAge30Days
	}

	saleBonus := in.CompletedSales * pointsPerSale
	if saleBonus > maxSaleBonus {
		saleBonus = maxSaleBonus
	}
	if saleBonus > 0 {
		factors["completed_orders"] = saleBonus
		score += saleBonus
	}

	if in.UnresolvedHigh > 0 {
		factors["fraud_high"] = -in.UnresolvedHigh * penaltyHighSignal
		score -= in.UnresolvedHigh * penaltyHighSignal
	}
	if in.UnresolvedCritical > 0 {
		factors["fraud_critical"] = -in.UnresolvedCritical * penaltyCriticalSignal
		score -= in.UnresolvedCritical * penaltyCriticalSignal
	}
	if in.OpenSellerDisputes > 0 {
		factors["disputes"] = -in.OpenSellerDisputes * penaltyPerDispute
		score -= in.OpenSellerDisputes * penaltyPerDispute
	}

	if in.Banned {
		score = 0
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, LevelFor(score), factors
}

// Per-level daily ceilings.
var (
	listingDayLimits = map[Level]int{
		LevelNew: 2, LevelBasic: 5, LevelVerified: 10, LevelTrusted: 20, LevelElite: 50,
	}
	presignDayLimits = map[Level]int{
		LevelNew: 10, LevelBasic: 20, LevelVerified: 40, LevelTrusted: 80, LevelElite: 200,
	}
)

// ListingDayLimitFor returns how many listings a user at the level may
// create per calendar day.
func ListingDayLimitFor(l Level) int {
	if v, ok := listingDayLimits[l]; ok {
		return v
	}
	return listingDayLimits[LevelNew]
}

// PresignDayLimitFor returns how many upload presigns a user at the level
// may request per calendar day.
func PresignDayLimitFor(l Level) int {
	if v, ok := presignDayLimits[l]; ok {
		return v
	}
	return presignDayLimits[LevelNew]
}

// SnapshotStore persists trust snapshots.
type SnapshotStore interface {
	Upsert(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, userID string) (*Snapshot, error)
}
