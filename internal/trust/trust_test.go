package trust

import (
	"testing"
	"time"
)

func TestComputeVerificationPoints(t *testing.T) {
	score, level, factors := Compute(Inputs{
		EmailVerified: true,
		PhoneVerified: true,
		IDVerified:    true,
	})
	if score != 75 {
		t.Errorf("expected score 75, got %d", score)
	}
	if level != LevelTrusted {
		t.Errorf("expected level TRUSTED, got %s", level)
	}
	if factors["email_verified"] != 20 || factors["phone_verified"] != 25 || factors["id_verified"] != 30 {
		t.Errorf("unexpected factor breakdown: %v", factors)
	}
}

func TestComputeAccountAge(t *testing.T) {
	score, _, factors := Compute(Inputs{AccountAge: 200 * 24 * time.Hour})
	if score != 15 {
		t.Errorf("expected score 15 for a 200-day account, got %d", score)
	}
	if factors["account_age_6m"] != 15 {
		t.Errorf("expected account_age_6m factor, got %v", factors)
	}

	score, _, factors = Compute(Inputs{AccountAge: 60 * 24 * time.Hour})
	if score != 10 {
		t.Errorf("expected score 10 for a 60-day account, got %d", score)
	}
	if factors["account_age_30d"] != 10 {
		t.Errorf("expected account_age_30d factor, got %v", factors)
	}
	if _, ok := factors["account_age_6m"]; ok {
		t.Error("60-day account must not get the 6-month bonus")
	}

	score, _, factors = Compute(Inputs{AccountAge: 10 * 24 * time.Hour})
	if score != 0 {
		t.Errorf("expected score 0 for a 10-day account, got %d", score)
	}
	if len(factors) != 0 {
		t.Errorf("expected no factors, got %v", factors)
	}
}

func TestComputeSaleBonusCapped(t *testing.T) {
	score, _, factors := Compute(Inputs{CompletedSales: 3})
	if score != 6 {
		t.Errorf("expected 6 points for 3 sales, got %d", score)
	}
	if factors["completed_orders"] != 6 {
		t.Errorf("unexpected completed_orders factor: %v", factors)
	}

	score, _, factors = Compute(Inputs{CompletedSales: 50})
	if score != 10 {
		t.Errorf("sale bonus must cap at 10, got %d", score)
	}
	if factors["completed_orders"] != 10 {
		t.Errorf("unexpected completed_orders factor: %v", factors)
	}
}

func TestComputePenalties(t *testing.T) {
	score, _, factors := Compute(Inputs{
		EmailVerified:      true,
		PhoneVerified:      true,
		IDVerified:         true,
		UnresolvedHigh:     1,
		UnresolvedCritical: 1,
		OpenSellerDisputes: 2,
	})
	// 75 - 15 - 25 - 20
	if score != 15 {
		t.Errorf("expected score 15, got %d", score)
	}
	if factors["fraud_high"] != -15 {
		t.Errorf("expected fraud_high -15, got %d", factors["fraud_high"])
	}
	if factors["fraud_critical"] != -25 {
		t.Errorf("expected fraud_critical -25, got %d", factors["fraud_critical"])
	}
	if factors["disputes"] != -20 {
		t.Errorf("expected disputes -20, got %d", factors["disputes"])
	}
}

func TestComputeClampedToZero(t *testing.T) {
	score, level, _ := Compute(Inputs{UnresolvedCritical: 4})
	if score != 0 {
		t.Errorf("score must clamp at 0, got %d", score)
	}
	if level != LevelNew {
		t.Errorf("expected level NEW, got %s", level)
	}
}

func TestComputeClampedToHundred(t *testing.T) {
	score, level, _ := Compute(Inputs{
		EmailVerified:  true,
		PhoneVerified:  true,
		IDVerified:     true,
		AccountAge:     365 * 24 * time.Hour,
		CompletedSales: 20,
	})
	if score != 100 {
		t.Errorf("score must clamp at 100, got %d", score)
	}
	if level != LevelElite {
		t.Errorf("expected level ELITE, got %s", level)
	}
}

func TestComputeBanZeroesScoreKeepsFactors(t *testing.T) {
	score, level, factors := Compute(Inputs{
		EmailVerified: true,
		PhoneVerified: true,
		Banned:        true,
	})
	if score != 0 {
		t.Errorf("banned user must score 0, got %d", score)
	}
	if level != LevelNew {
		t.Errorf("expected level NEW, got %s", level)
	}
	if factors["email_verified"] != 20 || factors["phone_verified"] != 25 {
		t.Errorf("factors must stay visible for banned users, got %v", factors)
	}
}

func TestLevelForThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  Level
	}{
		{0, LevelNew},
		{14, LevelNew},
		{15, LevelBasic},
		{39, LevelBasic},
		{40, LevelVerified},
		{64, LevelVerified},
		{65, LevelTrusted},
		{84, LevelTrusted},
		{85, LevelElite},
		{100, LevelElite},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.score); got != tc.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestDayLimits(t *testing.T) {
	cases := []struct {
		level    Level
		listings int
		presigns int
	}{
		{LevelNew, 2, 10},
		{LevelBasic, 5, 20},
		{LevelVerified, 10, 40},
		{LevelTrusted, 20, 80},
		{LevelElite, 50, 200},
		{Level("BOGUS"), 2, 10}, // unknown levels fall back to NEW
	}
	for _, tc := range cases {
		if got := ListingDayLimitFor(tc.level); got != tc.listings {
			t.Errorf("ListingDayLimitFor(%s) = %d, want %d", tc.level, got, tc.listings)
		}
		if got := PresignDayLimitFor(tc.level); got != tc.presigns {
			t.Errorf("PresignDayLimitFor(%s) = %d, want %d", tc.level, got, tc.presigns)
		}
	}
}
