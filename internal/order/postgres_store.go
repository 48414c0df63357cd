package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/listing"
)

// PostgresStore persists orders in PostgreSQL. Multi-step operations run
// inside a transaction so transitions and their side effects commit as
// one unit.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, listing_id, buyer_id, seller_id, status, total_amount, fee_cents,
	       currency, tracking_code, carrier, completed_at, created_at, updated_at`

const uniqueViolation = "23505"

func (p *PostgresStore) CreateReserving(ctx context.Context, o *Order) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(listing.StatusReserved), time.Now(), o.ListingID, string(listing.StatusActive),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, o.ListingID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return listing.ErrListingNotFound
		}
		return listing.ErrListingUnavailable
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, listing_id, buyer_id, seller_id, status, total_amount, fee_cents,
			currency, tracking_code, carrier, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.ListingID, o.BuyerID, o.SellerID, string(o.Status), o.TotalAmount, o.FeeCents,
		o.Currency, nullString(o.TrackingCode), nullString(o.Carrier), nullTime(o.CompletedAt),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (p *PostgresStore) FindActiveByBuyerAndListing(ctx context.Context, buyerID, listingID string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_id = $1 AND listing_id = $2 AND status NOT IN ($3, $4)
		LIMIT 1`,
		buyerID, listingID, string(StatusCancelled), string(StatusRefunded),
	)
	return scanOrder(row)
}

func (p *PostgresStore) Transition(ctx context.Context, from Status, o *Order) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $1, tracking_code = $2, carrier = $3, completed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		string(o.Status), nullString(o.TrackingCode), nullString(o.Carrier),
		nullTime(o.CompletedAt), o.UpdatedAt, o.ID, string(from),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return p.conflictFor(ctx, o.ID, from)
	}
	return nil
}

func (p *PostgresStore) CancelReleasing(ctx context.Context, o *Order) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(StatusCancelled), o.UpdatedAt, o.ID, string(StatusPending),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return p.conflictFor(ctx, o.ID, StatusPending)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(listing.StatusActive), time.Now(), o.ListingID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CreatePayment(ctx context.Context, pay *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, provider, intent_id, status, amount_cents, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pay.ID, pay.OrderID, pay.Provider, pay.IntentID, string(pay.Status),
		pay.AmountCents, pay.Currency, pay.CreatedAt, pay.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, order_id, provider, intent_id, status, amount_cents, currency, created_at, updated_at
		FROM payments WHERE order_id = $1`,
		orderID,
	)

	pay := &Payment{}
	var status string
	err := row.Scan(
		&pay.ID, &pay.OrderID, &pay.Provider, &pay.IntentID, &status,
		&pay.AmountCents, &pay.Currency, &pay.CreatedAt, &pay.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	pay.Status = PaymentStatus(status)
	return pay, nil
}

func (p *PostgresStore) MarkPaid(ctx context.Context, orderID, intentID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = $2 WHERE intent_id = $3`,
		string(PaymentSucceeded), now, intentID,
	)
	if err != nil {
		return err
	}
	// Only a PENDING order advances; retried webhooks find nothing to do.
	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(StatusPaid), now, orderID, string(StatusPending),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) MarkPaymentFailed(ctx context.Context, intentID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = $2 WHERE intent_id = $3`,
		string(PaymentFailed), time.Now(), intentID,
	)
	return err
}

func (p *PostgresStore) CreateDispute(ctx context.Context, d *Dispute) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5, $6)`,
		string(StatusDisputed), d.CreatedAt, d.OrderID,
		string(StatusPaid), string(StatusShipped), string(StatusDelivered),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		o, err := p.Get(ctx, d.OrderID)
		if err != nil {
			return err
		}
		return &ConflictError{Actual: o.Status, Expected: disputableStates}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO disputes (id, order_id, opened_by_id, reason, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.OrderID, d.OpenedByID, d.Reason, string(d.Status), d.CreatedAt, nullTime(d.ResolvedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDisputeExists
		}
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, order_id, opened_by_id, reason, status, created_at, resolved_at
		FROM disputes WHERE id = $1`,
		id,
	)
	return scanDispute(row)
}

func (p *PostgresStore) GetDisputeByOrder(ctx context.Context, orderID string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, order_id, opened_by_id, reason, status, created_at, resolved_at
		FROM disputes WHERE order_id = $1`,
		orderID,
	)
	return scanDispute(row)
}

func (p *PostgresStore) ResolveDispute(ctx context.Context, d *Dispute, orderStatus Status, listingStatus listing.Status) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE disputes SET status = $1, resolved_at = $2 WHERE id = $3`,
		string(d.Status), nullTime(d.ResolvedAt), d.ID,
	)
	if err != nil {
		return err
	}

	var listingID string
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING listing_id`,
		string(orderStatus), now, d.OrderID, string(StatusDisputed),
	).Scan(&listingID)
	if err == sql.ErrNoRows {
		return p.conflictFor(ctx, d.OrderID, StatusDisputed)
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(listingStatus), now, listingID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ListAutoReleasable(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT o.id, o.listing_id, o.buyer_id, o.seller_id, o.status, o.total_amount, o.fee_cents,
		       o.currency, o.tracking_code, o.carrier, o.completed_at, o.created_at, o.updated_at
		FROM orders o
		LEFT JOIN disputes d ON d.order_id = o.id
		WHERE o.status = $1 AND o.completed_at <= $2 AND d.id IS NULL
		ORDER BY o.completed_at ASC
		LIMIT $3`,
		string(StatusDelivered), before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (p *PostgresStore) AutoRelease(ctx context.Context, orderID string, entry *audit.Entry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	var listingID string
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING listing_id`,
		string(StatusCompleted), now, orderID, string(StatusDelivered),
	).Scan(&listingID)
	if err == sql.ErrNoRows {
		return p.conflictFor(ctx, orderID, StatusDelivered)
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(listing.StatusSold), now, listingID,
	)
	if err != nil {
		return err
	}

	metaJSON, _ := json.Marshal(entry.Meta)
	if entry.Meta == nil {
		metaJSON = []byte("{}")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, ip, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, nullString(entry.ActorID), entry.Action, nullString(entry.IP), metaJSON, entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CountByBuyer(ctx context.Context, buyerID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE buyer_id = $1`, buyerID,
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) CountCompletedBySeller(ctx context.Context, sellerID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE seller_id = $1 AND status = $2`,
		sellerID, string(StatusCompleted),
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) CountOpenDisputesBySeller(ctx context.Context, sellerID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM disputes d
		JOIN orders o ON o.id = d.order_id
		WHERE o.seller_id = $1 AND d.status NOT IN ($2, $3)`,
		sellerID, string(DisputeClosed), string(DisputeResolvedSeller),
	).Scan(&count)
	return count, err
}

// conflictFor builds the ConflictError for an order that was not in the
// expected state, or ErrOrderNotFound when the row is missing.
func (p *PostgresStore) conflictFor(ctx context.Context, orderID string, expected Status) error {
	o, err := p.Get(ctx, orderID)
	if err != nil {
		return err
	}
	return &ConflictError{Actual: o.Status, Expected: []Status{expected}}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	o := &Order{}
	var (
		status       string
		trackingCode sql.NullString
		carrier      sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.ListingID, &o.BuyerID, &o.SellerID, &status, &o.TotalAmount, &o.FeeCents,
		&o.Currency, &trackingCode, &carrier, &completedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.TrackingCode = trackingCode.String
	o.Carrier = carrier.String
	if completedAt.Valid {
		o.CompletedAt = &completedAt.Time
	}
	return o, nil
}

func scanDispute(row scanner) (*Dispute, error) {
	d := &Dispute{}
	var (
		status     string
		resolvedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.OrderID, &d.OpenedByID, &d.Reason, &status, &d.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = DisputeStatus(status)
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return d, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
