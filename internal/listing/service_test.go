package listing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/user"
)

type fixedQuota struct {
	limit int
}

func (f fixedQuota) ListingDayLimit(ctx context.Context, userID string) (int, error) {
	return f.limit, nil
}

type recordingFraud struct {
	checked []string
}

func (r *recordingFraud) CheckListing(ctx context.Context, sellerID string, priceCents int64, category string) {
	r.checked = append(r.checked, sellerID)
}

func setupService(t *testing.T, limit int) (*Service, *user.MemoryStore, *MemoryStore, *recordingFraud) {
	t.Helper()
	users := user.NewMemoryStore()
	store := NewMemoryStore()
	fraud := &recordingFraud{}
	svc := NewService(store, users, fixedQuota{limit}, fraud, audit.NewMemoryStore())
	return svc, users, store, fraud
}

func seedSeller(t *testing.T, users *user.MemoryStore, id string, banned bool) {
	t.Helper()
	now := time.Now()
	u := &user.User{ID: id, Email: id + "@example.com", Role: user.RoleUser, CreatedAt: now, UpdatedAt: now}
	if banned {
		u.BannedAt = &now
		u.BanReason = "fraud"
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
}

func TestCreateListing(t *testing.T) {
	svc, users, _, fraud := setupService(t, 10)
	seedSeller(t, users, "usr_1", false)

	l, err := svc.Create(context.Background(), "usr_1", "1.2.3.4", CreateInput{
		Title:      "  Gebrauchtes Fahrrad  ",
		Category:   CategorySport,
		PriceCents: 12000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if l.Title != "Gebrauchtes Fahrrad" {
		t.Errorf("title must be trimmed, got %q", l.Title)
	}
	if l.Status != StatusActive {
		t.Errorf("expected ACTIVE, got %s", l.Status)
	}
	if l.Currency != "EUR" {
		t.Errorf("currency must default to EUR, got %q", l.Currency)
	}
	if len(fraud.checked) != 1 || fraud.checked[0] != "usr_1" {
		t.Errorf("fraud engine must inspect the new listing, got %v", fraud.checked)
	}
}

func TestCreateListingValidation(t *testing.T) {
	svc, users, _, _ := setupService(t, 10)
	seedSeller(t, users, "usr_1", false)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "usr_1", "", CreateInput{Title: "   ", PriceCents: 100}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank title, got %v", err)
	}
	if _, err := svc.Create(ctx, "usr_1", "", CreateInput{Title: "Stuhl", PriceCents: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero price, got %v", err)
	}
	if _, err := svc.Create(ctx, "usr_1", "", CreateInput{Title: "Stuhl", PriceCents: -5}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative price, got %v", err)
	}

	l, err := svc.Create(ctx, "usr_1", "", CreateInput{Title: "Stuhl", PriceCents: 100})
	if err != nil {
		t.Fatal(err)
	}
	if l.Category != CategorySonstiges {
		t.Errorf("category must default to SONSTIGES, got %s", l.Category)
	}
}

func TestCreateListingBannedSeller(t *testing.T) {
	svc, users, _, _ := setupService(t, 10)
	seedSeller(t, users, "usr_banned", true)

	_, err := svc.Create(context.Background(), "usr_banned", "", CreateInput{Title: "Sofa", PriceCents: 5000})
	if !errors.Is(err, ErrSellerBanned) {
		t.Errorf("expected ErrSellerBanned, got %v", err)
	}
}

func TestCreateListingDailyLimit(t *testing.T) {
	svc, users, _, _ := setupService(t, 2)
	seedSeller(t, users, "usr_1", false)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, "usr_1", "", CreateInput{Title: "Artikel", PriceCents: 5000}); err != nil {
			t.Fatal(err)
		}
	}
	_, err := svc.Create(ctx, "usr_1", "", CreateInput{Title: "Artikel", PriceCents: 5000})
	if !errors.Is(err, ErrDailyLimitReached) {
		t.Errorf("expected ErrDailyLimitReached on the third listing, got %v", err)
	}

	var limitErr *DailyLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected a DailyLimitError, got %v", err)
	}
	if limitErr.Limit != 2 {
		t.Errorf("expected limit 2, got %d", limitErr.Limit)
	}
	// The window resets at the next local midnight.
	until := time.Until(limitErr.ResetAt)
	if until <= 0 || until > 24*time.Hour {
		t.Errorf("reset must fall within the next day, got %s", until)
	}
}

func TestCreateListingUnknownSeller(t *testing.T) {
	svc, _, _, _ := setupService(t, 10)

	_, err := svc.Create(context.Background(), "usr_ghost", "", CreateInput{Title: "Lampe", PriceCents: 900})
	if !errors.Is(err, user.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
