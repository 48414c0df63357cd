package trust

import (
	"context"
	"sync"
)

// MemorySnapshotStore is an in-memory snapshot store for demo/development mode.
type MemorySnapshotStore struct {
	snapshots map[string]*Snapshot
	mu        sync.RWMutex
}

// NewMemorySnapshotStore creates a new in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]*Snapshot)}
}

func (m *MemorySnapshotStore) Upsert(ctx context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.Factors = make(map[string]int, len(s.Factors))
	for k, v := range s.Factors {
		cp.Factors[k] = v
	}
	m.snapshots[s.UserID] = &cp
	return nil
}

func (m *MemorySnapshotStore) Get(ctx context.Context, userID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[userID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *s
	return &cp, nil
}

// Compile-time assertion that MemorySnapshotStore implements SnapshotStore.
var _ SnapshotStore = (*MemorySnapshotStore)(nil)
