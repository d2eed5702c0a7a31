package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTenantRequired is returned when a tenant-scoped call has no tenant.
// Running it anyway would make every RLS policy match nothing.
var ErrTenantRequired = errors.New("tenant id is required")

// Querier is satisfied by pooled connections and transactions alike, so
// stores never care which one they were given.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const setTenantSQL = "SELECT set_config('app.current_tenant_id', $1, $2)"

// setTenant points the RLS policies at tenantID. With local set the value
// lives until the surrounding transaction ends.
func setTenant(ctx context.Context, q Querier, tenantID string, local bool) error {
	if _, err := q.Exec(ctx, setTenantSQL, tenantID, local); err != nil {
		return fmt.Errorf("setting tenant context: %w", err)
	}
	return nil
}

// WithTenantConnection runs fn on a dedicated connection bound to
// tenantID. The setting is cleared before the connection goes back to the
// pool so the next borrower starts with no tenant.
func WithTenantConnection(ctx context.Context, pool *pgxpool.Pool, tenantID string, fn func(ctx context.Context, q Querier) error) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() {
		// The request context may already be canceled here.
		if err := setTenant(context.Background(), conn, "", false); err != nil {
			// A connection that kept a tenant must not be reused.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}()

	if err := setTenant(ctx, conn, tenantID, false); err != nil {
		return err
	}
	return fn(ctx, conn)
}

// WithTenantTx is WithTenantConnection inside a transaction. The tenant
// setting is transaction-local, so it is discarded on commit or rollback.
func WithTenantTx(ctx context.Context, pool *pgxpool.Pool, tenantID string, fn func(ctx context.Context, q Querier) error) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setTenant(ctx, tx, tenantID, true); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
