package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory conversation store for demo/development mode.
type MemoryStore struct {
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation ID
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.conversations[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) FindByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.conversations {
		if c.ListingID == listingID && c.BuyerID == buyerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrConversationNotFound
}

func (m *MemoryStore) CountByBuyer(ctx context.Context, buyerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.conversations {
		if c.BuyerID == buyerID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	c.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	result := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != readerID && msg.ReadAt == nil {
			t := at
			msg.ReadAt = &t
		}
	}
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
