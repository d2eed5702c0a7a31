package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// ModeratorStore handles moderator rows. The users table is read during
// login before any tenant is known, so every query filters on tenant_id.
type ModeratorStore struct{}

func NewModeratorStore() *ModeratorStore {
	return &ModeratorStore{}
}

const moderatorColumns = `id, tenant_id, email, username, first_name, last_name, role, is_active, created_at, updated_at`

func scanModerator(row pgx.Row) (*Moderator, error) {
	var m Moderator
	err := row.Scan(&m.ID, &m.TenantID, &m.Email, &m.Username, &m.FirstName, &m.LastName,
		&m.Role, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a moderator with an already hashed password.
func (s *ModeratorStore) Create(ctx context.Context, q database.Querier, tenantID string, in NewModerator, passwordHash string) (*Moderator, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	m, err := scanModerator(q.QueryRow(ctx,
		`INSERT INTO users (tenant_id, email, username, first_name, last_name, role, password_hash)
		 VALUES ($1, lower($2), $3, $4, $5, $6, $7)
		 RETURNING `+moderatorColumns,
		tenantID, in.Email, in.Username, in.FirstName, in.LastName, in.Role, passwordHash,
	))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrLoginTaken, database.ConstraintName(err))
		}
		return nil, fmt.Errorf("creating moderator: %w", err)
	}
	return m, nil
}

// GetByID retrieves a moderator of the tenant.
func (s *ModeratorStore) GetByID(ctx context.Context, q database.Querier, tenantID, id string) (*Moderator, error) {
	m, err := scanModerator(q.QueryRow(ctx,
		`SELECT `+moderatorColumns+` FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModeratorNotFound
		}
		return nil, fmt.Errorf("getting moderator: %w", err)
	}
	return m, nil
}

// List returns the tenant's moderators, owners first.
func (s *ModeratorStore) List(ctx context.Context, q database.Querier, tenantID string) ([]Moderator, error) {
	rows, err := q.Query(ctx,
		`SELECT `+moderatorColumns+` FROM users
		 WHERE tenant_id = $1
		 ORDER BY role = 'owner' DESC, username`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing moderators: %w", err)
	}
	defer rows.Close()

	var moderators []Moderator
	for rows.Next() {
		m, err := scanModerator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning moderator: %w", err)
		}
		moderators = append(moderators, *m)
	}
	return moderators, rows.Err()
}

// PasswordHash returns the stored bcrypt hash of a moderator.
func (s *ModeratorStore) PasswordHash(ctx context.Context, q database.Querier, tenantID, id string) (string, error) {
	var hash string
	err := q.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrModeratorNotFound
		}
		return "", fmt.Errorf("reading password hash: %w", err)
	}
	return hash, nil
}

// SetPassword replaces the password hash of a moderator.
func (s *ModeratorStore) SetPassword(ctx context.Context, q database.Querier, tenantID, id, passwordHash string) error {
	tag, err := q.Exec(ctx,
		`UPDATE users SET password_hash = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModeratorNotFound
	}
	return nil
}

// Deactivate blocks a moderator from logging in.
func (s *ModeratorStore) Deactivate(ctx context.Context, q database.Querier, tenantID, id string) (*Moderator, error) {
	m, err := scanModerator(q.QueryRow(ctx,
		`UPDATE users SET is_active = false, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+moderatorColumns,
		tenantID, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModeratorNotFound
		}
		return nil, fmt.Errorf("deactivating moderator: %w", err)
	}
	return m, nil
}
