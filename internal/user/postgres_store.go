package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, role, email_verified, phone_verified, id_verified,
	       banned_at, ban_reason, shadow_banned, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, role, email_verified, phone_verified, id_verified,
			banned_at, ban_reason, shadow_banned, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, string(u.Role), u.EmailVerified, u.PhoneVerified, u.IDVerified,
		nullTime(u.BannedAt), nullString(u.BanReason), u.ShadowBanned, u.CreatedAt, u.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (p *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var (
		role      string
		bannedAt  sql.NullTime
		banReason sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &role, &u.EmailVerified, &u.PhoneVerified, &u.IDVerified,
		&bannedAt, &banReason, &u.ShadowBanned, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Role = Role(role)
	u.BanReason = banReason.String
	if bannedAt.Valid {
		u.BannedAt = &bannedAt.Time
	}
	return u, nil
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			email = $1, role = $2, email_verified = $3, phone_verified = $4,
			id_verified = $5, banned_at = $6, ban_reason = $7, shadow_banned = $8,
			updated_at = $9
		WHERE id = $10`,
		u.Email, string(u.Role), u.EmailVerified, u.PhoneVerified,
		u.IDVerified, nullTime(u.BannedAt), nullString(u.BanReason), u.ShadowBanned,
		u.UpdatedAt, u.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
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
