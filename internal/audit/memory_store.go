package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory audit log for demo/development mode.
type MemoryStore struct {
	entries []*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryStore) CountByActorSince(ctx context.Context, actorID, action string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if e.ActorID == actorID && e.Action == action && e.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountByIPSince(ctx context.Context, ip, action string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if e.IP == ip && e.Action == action && e.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, action string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if action != "" && e.Action != action {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
