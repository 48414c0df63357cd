package trust

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresSnapshotStore persists trust snapshots in PostgreSQL.
type PostgresSnapshotStore struct {
	db *sql.DB
}

// NewPostgresSnapshotStore creates a new PostgreSQL-backed snapshot store.
func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (p *PostgresSnapshotStore) Upsert(ctx context.Context, s *Snapshot) error {
	factorsJSON, _ := json.Marshal(s.Factors)
	if s.Factors == nil {
		factorsJSON = []byte("{}")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trust_scores (user_id, score, level, factors, calculated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			score = EXCLUDED.score,
			level = EXCLUDED.level,
			factors = EXCLUDED.factors,
			calculated_at = EXCLUDED.calculated_at`,
		s.UserID, s.Score, string(s.Level), factorsJSON, s.CalculatedAt,
	)
	return err
}

func (p *PostgresSnapshotStore) Get(ctx context.Context, userID string) (*Snapshot, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, score, level, factors, calculated_at
		FROM trust_scores WHERE user_id = $1`,
		userID,
	)

	s := &Snapshot{}
	var (
		level       string
		factorsJSON []byte
	)
	err := row.Scan(&s.UserID, &s.Score, &level, &factorsJSON, &s.CalculatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Level = Level(level)
	if len(factorsJSON) > 0 {
		_ = json.Unmarshal(factorsJSON, &s.Factors)
	}
	return s, nil
}

// Compile-time assertion that PostgresSnapshotStore implements SnapshotStore.
var _ SnapshotStore = (*PostgresSnapshotStore)(nil)
