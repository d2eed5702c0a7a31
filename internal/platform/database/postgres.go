package database

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the shared connection pool type handed to stores and handlers.
type Pool = pgxpool.Pool

const (
	applicationName = "shopfront"

	// Webhook bursts come in short spikes, so idle connections are released
	// instead of being held between them.
	maxConnIdleTime = 5 * time.Minute
	maxConnLifetime = time.Hour
)

// Connect opens a pool against databaseURL and verifies it with a ping.
// maxConns <= 0 keeps the pgx default.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = int32(min(maxConns, math.MaxInt32)) // #nosec G115 -- clamped
	}
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.MaxConnLifetime = maxConnLifetime
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
