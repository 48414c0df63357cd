package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novamarkt/platform/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u := &User{
		ID:        "usr_pg1",
		Email:     "max@example.com",
		Role:      RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(ctx, u); err != nil {
		t.Fatal(err)
	}

	// The unique index is on lower(email).
	dup := &User{ID: "usr_pg2", Email: "MAX@example.com", Role: RoleUser, CreatedAt: now, UpdatedAt: now}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	got, err := store.Get(ctx, "usr_pg1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "max@example.com" || got.Role != RoleUser {
		t.Errorf("unexpected user: %+v", got)
	}
	if got.BannedAt != nil || got.BanReason != "" {
		t.Errorf("fresh user must not be banned: %+v", got)
	}

	byEmail, err := store.FindByEmail(ctx, "Max@Example.COM")
	if err != nil {
		t.Fatal(err)
	}
	if byEmail.ID != "usr_pg1" {
		t.Errorf("expected usr_pg1, got %s", byEmail.ID)
	}

	banTime := now.Add(time.Hour)
	got.EmailVerified = true
	got.BannedAt = &banTime
	got.BanReason = "fraud"
	got.UpdatedAt = banTime
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}

	updated, err := store.Get(ctx, "usr_pg1")
	if err != nil {
		t.Fatal(err)
	}
	if !updated.EmailVerified || !updated.IsBanned() || updated.BanReason != "fraud" {
		t.Errorf("update not persisted: %+v", updated)
	}

	if _, err := store.Get(ctx, "usr_ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if err := store.Update(ctx, &User{ID: "usr_ghost"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound updating a ghost, got %v", err)
	}
}
