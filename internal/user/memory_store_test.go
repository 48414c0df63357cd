package user

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreEmailUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	err := store.Create(ctx, &User{ID: "usr_1", Email: "max@example.com", Role: RoleUser, CreatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	err = store.Create(ctx, &User{ID: "usr_2", Email: "MAX@example.com", Role: RoleUser, CreatedAt: now})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	u, err := store.FindByEmail(ctx, "Max@Example.com")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "usr_1" {
		t.Errorf("expected usr_1, got %s", u.ID)
	}
}

func TestMemoryStoreUpdateRekeysEmail(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for _, u := range []*User{
		{ID: "usr_1", Email: "a@example.com", Role: RoleUser, CreatedAt: now},
		{ID: "usr_2", Email: "b@example.com", Role: RoleUser, CreatedAt: now},
	} {
		if err := store.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	u, _ := store.Get(ctx, "usr_1")
	u.Email = "b@example.com"
	if err := store.Update(ctx, u); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken on update collision, got %v", err)
	}

	u.Email = "c@example.com"
	if err := store.Update(ctx, u); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindByEmail(ctx, "a@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("old email must be released, got %v", err)
	}
	if got, err := store.FindByEmail(ctx, "c@example.com"); err != nil || got.ID != "usr_1" {
		t.Errorf("new email must resolve to usr_1, got %v %v", got, err)
	}
}
