// Package conversation provides buyer/seller chat threads attached to
// listings. Outbound messages pass the moderation filter before they are
// persisted; blocked messages never reach the store.
package conversation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("not a participant of this conversation")
	ErrSelfConversation     = errors.New("cannot start a conversation on your own listing")
)

// Conversation is a chat thread between a buyer and the seller of a listing.
type Conversation struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listingId"`
	BuyerID   string    `json:"buyerId"`
	SellerID  string    `json:"sellerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasParticipant reports whether the user takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Message is a single chat message.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// Store persists conversations and their messages.
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// FindByListingAndBuyer returns the existing thread for a buyer on a
	// listing, or ErrConversationNotFound.
	FindByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*Conversation, error)
	// CountByBuyer counts conversations the user started as buyer
	// (chat-without-orders fraud rule).
	CountByBuyer(ctx context.Context, buyerID string) (int, error)
	// CreateMessage appends a message and bumps the conversation's UpdatedAt.
	CreateMessage(ctx context.Context, m *Message) error
	// ListMessages returns messages oldest first, capped at limit.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// MarkRead marks all messages not sent by readerID as read.
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error
}
