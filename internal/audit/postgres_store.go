package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"
)

// PostgresStore persists audit entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Entry) error {
	metaJSON, _ := json.Marshal(e.Meta)
	if e.Meta == nil {
		metaJSON = []byte("{}")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, ip, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, nullString(e.ActorID), e.Action, nullString(e.IP), metaJSON, e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) CountByActorSince(ctx context.Context, actorID, action string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE actor_id = $1 AND action = $2 AND created_at > $3`,
		actorID, action, since,
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) CountByIPSince(ctx context.Context, ip, action string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE ip = $1 AND action = $2 AND created_at > $3`,
		ip, action, since,
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) ListRecent(ctx context.Context, action string, limit int) ([]*Entry, error) {
	query := `
		SELECT id, actor_id, action, ip, meta, created_at
		FROM audit_log`
	args := []any{}
	if action != "" {
		query += ` WHERE action = $1`
		args = append(args, action)
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		var (
			actorID  sql.NullString
			ip       sql.NullString
			metaJSON []byte
		)
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &ip, &metaJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = actorID.String
		e.IP = ip.String
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Meta)
		}
		result = append(result, e)
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

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
