package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credentials is a moderator row as seen by login.
type Credentials struct {
	Identity     Identity
	PasswordHash string
	IsActive     bool
}

// Store reads moderators for authentication. The users table is global,
// so queries go straight to the pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectCredentials = `SELECT id, tenant_id, username, email, role, is_platform_admin, password_hash, is_active FROM users`

// FindByLogin looks a moderator up by username or email (case-insensitive).
func (s *Store) FindByLogin(ctx context.Context, login string) (*Credentials, error) {
	return s.scanOne(ctx, selectCredentials+` WHERE lower(username) = lower($1) OR lower(email) = lower($1) LIMIT 1`, login)
}

// FindByID loads the current state of a moderator, used when refreshing
// tokens so deactivation and role changes take effect.
func (s *Store) FindByID(ctx context.Context, userID string) (*Credentials, error) {
	return s.scanOne(ctx, selectCredentials+` WHERE id = $1`, userID)
}

func (s *Store) scanOne(ctx context.Context, sql string, arg string) (*Credentials, error) {
	var c Credentials
	var role string
	err := s.pool.QueryRow(ctx, sql, arg).Scan(
		&c.Identity.UserID,
		&c.Identity.TenantID,
		&c.Identity.Username,
		&c.Identity.Email,
		&role,
		&c.Identity.IsPlatformAdmin,
		&c.PasswordHash,
		&c.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	c.Identity.Roles = []string{role}
	c.Identity.TokenType = TokenTypeAccess
	return &c, nil
}
