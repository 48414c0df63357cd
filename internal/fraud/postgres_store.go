package fraud

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore persists fraud signals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed fraud signal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const signalColumns = `id, user_id, type, severity, meta, created_at, resolved_at`

func (p *PostgresStore) Create(ctx context.Context, s *Signal) error {
	metaJSON, _ := json.Marshal(s.Meta)
	if s.Meta == nil {
		metaJSON = []byte("{}")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO fraud_signals (id, user_id, type, severity, meta, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, nullString(s.UserID), s.Type, string(s.Severity), metaJSON, s.CreatedAt, nullTime(s.ResolvedAt),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Signal, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM fraud_signals WHERE id = $1`, id)
	return scanSignal(row)
}

func (p *PostgresStore) FindUnresolved(ctx context.Context, userID, sigType string) (*Signal, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+signalColumns+` FROM fraud_signals
		WHERE user_id = $1 AND type = $2 AND resolved_at IS NULL
		LIMIT 1`,
		userID, sigType,
	)
	return scanSignal(row)
}

func (p *PostgresStore) Resolve(ctx context.Context, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE fraud_signals SET resolved_at = $1
		WHERE id = $2 AND resolved_at IS NULL`,
		at, id,
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
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM fraud_signals WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSignalNotFound
		}
	}
	return nil
}

func (p *PostgresStore) ListUnresolved(ctx context.Context, limit int) ([]*Signal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM fraud_signals
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSignals(rows)
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Signal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM fraud_signals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSignals(rows)
}

func (p *PostgresStore) UnresolvedSeverityCounts(ctx context.Context, userID string) (int, int, error) {
	var high, critical int
	err := p.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE severity = 'HIGH'),
			COUNT(*) FILTER (WHERE severity = 'CRITICAL')
		FROM fraud_signals
		WHERE user_id = $1 AND resolved_at IS NULL`,
		userID,
	).Scan(&high, &critical)
	return high, critical, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(row scanner) (*Signal, error) {
	s := &Signal{}
	var (
		userID     sql.NullString
		severity   string
		metaJSON   []byte
		resolvedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &userID, &s.Type, &severity, &metaJSON, &s.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, err
	}
	s.UserID = userID.String
	s.Severity = Severity(severity)
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &s.Meta)
	}
	if resolvedAt.Valid {
		s.ResolvedAt = &resolvedAt.Time
	}
	return s, nil
}

func scanSignals(rows *sql.Rows) ([]*Signal, error) {
	defer func() { _ = rows.Close() }()

	var result []*Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
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
