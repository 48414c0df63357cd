package fraud

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory fraud signal store for demo/development mode.
type MemoryStore struct {
	signals map[string]*Signal
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory fraud signal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]*Signal)}
}

func (m *MemoryStore) Create(ctx context.Context, s *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.signals[id]
	if !ok {
		return nil, ErrSignalNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) FindUnresolved(ctx context.Context, userID, sigType string) (*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.signals {
		if s.UserID == userID && s.Type == sigType && s.ResolvedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSignalNotFound
}

func (m *MemoryStore) Resolve(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return ErrSignalNotFound
	}
	if s.ResolvedAt == nil {
		t := at
		s.ResolvedAt = &t
	}
	return nil
}

func (m *MemoryStore) ListUnresolved(ctx context.Context, limit int) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Signal
	for _, s := range m.signals {
		if s.ResolvedAt == nil {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Signal
	for _, s := range m.signals {
		if s.UserID == userID {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) UnresolvedSeverityCounts(ctx context.Context, userID string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var high, critical int
	for _, s := range m.signals {
		if s.UserID != userID || s.ResolvedAt != nil {
			continue
		}
		switch s.Severity {
		case SeverityHigh:
			high++
		case SeverityCritical:
			critical++
		}
	}
	return high, critical, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
