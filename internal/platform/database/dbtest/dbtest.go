// Package dbtest starts disposable Postgres containers for integration tests.
package dbtest

import (
	"context"
	"net/url"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "postgres:16-alpine"

// MigrationsURL is the file:// source of the repository's migrations.
func MigrationsURL() string {
	_, file, _, _ := runtime.Caller(0)
	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}

// Container starts an empty Postgres and returns a superuser DSN.
func Container(t testing.TB) (string, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("shopfront_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn, func() { _ = container.Terminate(context.Background()) }
}

// Migrated is Container with the schema applied.
func Migrated(t testing.TB) (string, func()) {
	t.Helper()
	dsn, cleanup := Container(t)
	require.NoError(t, database.RunMigrations(dsn, MigrationsURL()))
	return dsn, cleanup
}

// Start returns a pool on a migrated database. The pool connects as the
// superuser, so row-level security is bypassed.
func Start(t testing.TB) (*database.Pool, func()) {
	t.Helper()
	dsn, terminate := Migrated(t)

	pool, err := database.Connect(context.Background(), dsn, 5)
	require.NoError(t, err)
	return pool, func() {
		pool.Close()
		terminate()
	}
}

// AppRole creates a login role with DML grants on every table and returns
// superDSN rewritten to log in as it. Queries through that role are subject
// to row-level security.
func AppRole(t testing.TB, superDSN, role, password string) string {
	t.Helper()
	ctx := context.Background()

	super, err := database.Connect(ctx, superDSN, 1)
	require.NoError(t, err)
	defer super.Close()

	ident := `"` + role + `"`
	_, err = super.Exec(ctx, `
		CREATE ROLE `+ident+` LOGIN PASSWORD '`+password+`';
		GRANT USAGE ON SCHEMA public TO `+ident+`;
		GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO `+ident+`;
		GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO `+ident+`;
	`)
	require.NoError(t, err)

	u, err := url.Parse(superDSN)
	require.NoError(t, err)
	u.User = url.UserPassword(role, password)
	return u.String()
}
