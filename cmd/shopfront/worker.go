package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopfront-hq/shopfront/internal/mailings"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/config"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

const defaultTenantScanPageSize = 100

type tenantLister interface {
	ListActiveIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// tenantWorker runs step once per active tenant on every tick.
type tenantWorker struct {
	name               string
	tenants            tenantLister
	step               func(ctx context.Context, tenantID string) error
	pollInterval       time.Duration
	tenantScanPageSize int
}

func (w *tenantWorker) Run(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *tenantWorker) sweep(ctx context.Context) {
	tenantIDs, err := listTenantIDs(ctx, w.tenants, w.tenantScanPageSize)
	if err != nil {
		slog.Error("worker failed to list tenants", "worker", w.name, "error", err)
		return
	}

	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			return
		}
		if err := w.step(ctx, tenantID); err != nil {
			slog.Error("worker tenant sweep failed", "worker", w.name, "tenant_id", tenantID, "error", err)
		}
	}
}

func listTenantIDs(ctx context.Context, tenants tenantLister, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("tenant scan page size must be positive")
	}

	var all []string
	after := ""
	for {
		page, err := tenants.ListActiveIDs(ctx, after, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		after = page[len(page)-1]
	}
}

func pollInterval(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func scanPageSize(n int) int {
	if n <= 0 {
		return defaultTenantScanPageSize
	}
	return n
}

// buildOutboxWorker drains due outbox jobs of every tenant through sender.
func buildOutboxWorker(pool *database.Pool, tenants tenantLister, store *outbox.Store, sender outbox.Sender, cfg config.OutboxConfig) *tenantWorker {
	if pool == nil || !cfg.Enabled {
		return nil
	}

	dispatcher := outbox.NewDispatcher(store, sender, outbox.DispatcherConfig{
		ClaimBatchSize: cfg.ClaimBatchSize,
		LockTimeout:    time.Duration(cfg.LockTimeoutSeconds) * time.Second,
		MaxAttempts:    cfg.MaxAttempts,
		BaseRetryDelay: time.Duration(cfg.BaseRetrySeconds) * time.Second,
		MaxRetryDelay:  time.Duration(cfg.MaxRetrySeconds) * time.Second,
		JitterFraction: cfg.JitterFraction,
	})

	return &tenantWorker{
		name:    "outbox",
		tenants: tenants,
		step: func(ctx context.Context, tenantID string) error {
			return database.WithTenantConnection(ctx, pool, tenantID, func(ctx context.Context, q database.Querier) error {
				_, err := dispatcher.DispatchOnce(ctx, q)
				return err
			})
		},
		pollInterval:       pollInterval(cfg.PollIntervalSeconds, 2*time.Second),
		tenantScanPageSize: scanPageSize(cfg.TenantScanPageSize),
	}
}

// buildMailingWorker fans due posts out to the outbox. Each tenant runs in
// one transaction so a claimed post is never left without its jobs.
func buildMailingWorker(pool *database.Pool, tenants tenantLister, scheduler *mailings.Scheduler, cfg config.MailingsConfig, pageSize int) *tenantWorker {
	if pool == nil || !cfg.Enabled {
		return nil
	}

	return &tenantWorker{
		name:    "mailings",
		tenants: tenants,
		step: func(ctx context.Context, tenantID string) error {
			return database.WithTenantTx(ctx, pool, tenantID, func(ctx context.Context, q database.Querier) error {
				_, err := scheduler.RunOnce(ctx, q, tenantID)
				return err
			})
		},
		pollInterval:       pollInterval(cfg.PollIntervalSeconds, 15*time.Second),
		tenantScanPageSize: scanPageSize(pageSize),
	}
}
