package listing

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists listings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed listing store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const listingColumns = `id, seller_id, title, category, price_cents, currency, status, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, l *Listing) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO listings (
			id, seller_id, title, category, price_cents, currency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.SellerID, l.Title, string(l.Category), l.PriceCents, l.Currency,
		string(l.Status), l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Listing, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)

	l := &Listing{}
	var category, status string
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &category, &l.PriceCents, &l.Currency,
		&status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Category = Category(category)
	l.Status = Status(status)
	return l, nil
}

func (p *PostgresStore) ReserveIfActive(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(StatusReserved), time.Now(), id, string(StatusActive),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing listing from one in the wrong state.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrListingNotFound
		}
		return ErrListingUnavailable
	}
	return nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (p *PostgresStore) CountBySellerSince(ctx context.Context, sellerID string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM listings
		WHERE seller_id = $1 AND created_at > $2`,
		sellerID, since,
	).Scan(&count)
	return count, err
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
