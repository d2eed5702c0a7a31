package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// tenantColumns matches the field order of Tenant.
const tenantColumns = `id, name, slug, status, created_at, updated_at`

// Store reads and writes the tenants table. Tenants sit outside RLS, so it
// uses the pool directly.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func collectTenant(rows pgx.Rows) (*Tenant, error) {
	t, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Tenant])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) Create(ctx context.Context, name, slug string) (*Tenant, error) {
	return s.create(ctx, s.pool, name, slug)
}

// CreateWithOwner inserts a tenant and its first owner atomically.
func (s *Store) CreateWithOwner(ctx context.Context, name, slug string, owner NewModerator, passwordHash string) (*Tenant, *Moderator, error) {
	var (
		t *Tenant
		m *Moderator
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if t, err = s.create(ctx, tx, name, slug); err != nil {
			return err
		}
		owner.Role = RoleOwner
		m, err = NewModeratorStore().Create(ctx, tx, t.ID, owner, passwordHash)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

func (s *Store) create(ctx context.Context, q database.Querier, name, slug string) (*Tenant, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING `+tenantColumns,
		name, slug)
	if err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	t, err := collectTenant(rows)
	switch {
	case database.IsUniqueViolation(err):
		return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
	case err != nil:
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	return t, nil
}

// GetByID returns ErrTenantNotFound for unknown and malformed ids alike.
func (s *Store) GetByID(ctx context.Context, id string) (*Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTenantNotFound
	}
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	t, err := collectTenant(rows)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return t, err
}

func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Tenant])
	if err != nil {
		return nil, fmt.Errorf("scanning tenants: %w", err)
	}
	return tenants, nil
}

// SetStatus moves a tenant between active and suspended.
func (s *Store) SetStatus(ctx context.Context, id, status string) (*Tenant, error) {
	if status != StatusActive && status != StatusSuspended {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTenantNotFound
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+tenantColumns,
		id, status)
	if err != nil {
		return nil, fmt.Errorf("updating tenant status: %w", err)
	}
	t, err := collectTenant(rows)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("updating tenant status: %w", err)
	}
	return t, err
}

// ListActiveIDs returns one page of active tenant ids greater than after,
// in id order. Background workers page through it to sweep every tenant.
func (s *Store) ListActiveIDs(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text FROM tenants
		 WHERE status = $1 AND id::text > $2
		 ORDER BY id::text LIMIT $3`,
		StatusActive, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tenant ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning tenant ids: %w", err)
	}
	return ids, nil
}
