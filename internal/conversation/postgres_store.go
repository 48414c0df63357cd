package conversation

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed conversation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const conversationColumns = `id, listing_id, buyer_id, seller_id, created_at, updated_at`

func (p *PostgresStore) CreateConversation(ctx context.Context, c *Conversation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversations (id, listing_id, buyer_id, seller_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ListingID, c.BuyerID, c.SellerID, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (p *PostgresStore) FindByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*Conversation, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE listing_id = $1 AND buyer_id = $2`,
		listingID, buyerID,
	)
	return scanConversation(row)
}

func (p *PostgresStore) CountByBuyer(ctx context.Context, buyerID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE buyer_id = $1`, buyerID,
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) CreateMessage(ctx context.Context, m *Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt,
	)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		m.CreatedAt, m.ConversationID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

func (p *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Message
	for rows.Next() {
		m := &Message{}
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (p *PostgresStore) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE messages SET read_at = $1
		WHERE conversation_id = $2 AND sender_id != $3 AND read_at IS NULL`,
		at, conversationID, readerID,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	c := &Conversation{}
	err := row.Scan(&c.ID, &c.ListingID, &c.BuyerID, &c.SellerID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
