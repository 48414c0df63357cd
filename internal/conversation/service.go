package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/idgen"
	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/logging"
)

var ErrEmptyMessage = errors.New("message body is empty")

// MaxMessageLength caps a single chat message.
const MaxMessageLength = 2000

var ErrMessageTooLong = errors.New("message body exceeds the maximum length")

// ListingSource resolves the listing a conversation is attached to.
type ListingSource interface {
	Get(ctx context.Context, id string) (*listing.Listing, error)
}

// Moderator reviews a message body before it is persisted.
type Moderator interface {
	Review(ctx context.Context, senderID, ip, body string) error
}

// FraudChecker evaluates a buyer's conversation pattern.
type FraudChecker interface {
	CheckConversation(ctx context.Context, buyerID string)
}

// EventPublisher fans out realtime events to connected clients.
// Implemented by the websocket hub.
type EventPublisher interface {
	Publish(eventType string, data map[string]any)
}

// Service implements conversation and messaging flows.
type Service struct {
	store     Store
	listings  ListingSource
	moderator Moderator
	fraud     FraudChecker
	audits    audit.Store
	events    EventPublisher
}

// NewService creates a conversation service.
func NewService(store Store, listings ListingSource, moderator Moderator, fraud FraudChecker, audits audit.Store, events EventPublisher) *Service {
	return &Service{
		store:     store,
		listings:  listings,
		moderator: moderator,
		fraud:     fraud,
		audits:    audits,
		events:    events,
	}
}

// Start opens (or returns the existing) conversation between the buyer
// and the seller of a listing.
func (s *Service) Start(ctx context.Context, buyerID, listingID string) (*Conversation, error) {
	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID == buyerID {
		return nil, ErrSelfConversation
	}

	if existing, err := s.store.FindByListingAndBuyer(ctx, listingID, buyerID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	now := time.Now()
	c := &Conversation{
		ID:        idgen.WithPrefix("cnv_"),
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  l.SellerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, err
	}

	s.fraud.CheckConversation(ctx, buyerID)

	logging.L(ctx).Info("conversation started",
		"conversation_id", c.ID,
		"listing_id", listingID,
		"buyer_id", buyerID,
	)
	return c, nil
}

// Get returns a conversation, restricted to its participants.
func (s *Service) Get(ctx context.Context, id, actorID string) (*Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// SendMessage runs the moderation filter and, when the message passes,
// persists it, publishes a realtime event, and records the send.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, ip, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if len(body) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	if err := s.moderator.Review(ctx, senderID, ip, body); err != nil {
		return nil, err
	}

	m := &Message{
		ID:             idgen.WithPrefix("msg_"),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	s.events.Publish("message.created", map[string]any{
		"conversationId": c.ID,
		"messageId":      m.ID,
		"senderId":       senderID,
		"buyerId":        c.BuyerID,
		"sellerId":       c.SellerID,
	})
	_ = audit.Record(ctx, s.audits, senderID, audit.ActionMessageSend, ip, map[string]any{
		"conversationId": c.ID,
		"messageId":      m.ID,
	})
	return m, nil
}

// ListMessages returns messages for a participant and marks the thread read.
func (s *Service) ListMessages(ctx context.Context, conversationID, actorID string, limit int) ([]*Message, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	msgs, err := s.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkRead(ctx, conversationID, actorID, time.Now()); err != nil {
		logging.L(ctx).Warn("mark read failed", "conversation_id", conversationID, "error", err)
	}
	return msgs, nil
}
