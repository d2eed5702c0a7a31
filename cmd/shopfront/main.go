package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/auth"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/keyboards"
	"github.com/shopfront-hq/shopfront/internal/mailer"
	"github.com/shopfront-hq/shopfront/internal/mailings"
	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/cache"
	"github.com/shopfront-hq/shopfront/internal/platform/config"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/server"
	"github.com/shopfront-hq/shopfront/internal/platform/telemetry"
	"github.com/shopfront-hq/shopfront/internal/rbac"
	"github.com/shopfront-hq/shopfront/internal/reference"
	"github.com/shopfront-hq/shopfront/internal/shop"
	"github.com/shopfront-hq/shopfront/internal/subscribers"
	"github.com/shopfront-hq/shopfront/internal/telegram"
	"github.com/shopfront-hq/shopfront/internal/tenant"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("shopfront starting", "port", cfg.Server.Port, "site", cfg.Server.SiteURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.Database.URL, "file://"+cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	tg := telegram.NewClient(telegram.Config{
		Endpoint:      cfg.Telegram.APIEndpoint,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		Timeout:       time.Duration(cfg.Telegram.RequestTimeoutSeconds) * time.Second,
	})

	// Audit
	auditLogger := audit.NewAsyncLogger(
		func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error {
			return database.WithTenantTx(ctx, pool, tenantID, fn)
		},
		audit.NewStore(),
		audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushIntervalMS) * time.Millisecond,
			Logger:        logger.With("component", "audit"),
		},
	)
	defer auditLogger.Close()

	var sender mailer.Sender = mailer.Nop{Logger: logger}
	if cfg.Mail.Enabled {
		sender = mailer.NewSMTP(mailer.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}
	credMailer := tenant.NewCredentialsMailer(sender, cfg.Server.SiteURL, logger)

	// Auth
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)
	authHandler := auth.NewHandler(auth.HandlerConfig{
		TokenSvc: tokenSvc,
		Store:    auth.NewStore(pool),
	})

	// Stores
	tenantStore := tenant.NewStore(pool)
	botStore := bots.NewStore()
	catalogStore := catalog.NewStore()
	orderStore := orders.NewStore()
	subscriberStore := subscribers.NewStore()
	mailingStore := mailings.NewStore()
	outboxStore := outbox.NewStore(cfg.Outbox.MaxAttempts)

	// Moderator API
	webhooks := bots.NewWebhooks(tg, cfg.Server.WebhookURL, logger)
	tenantHandler := tenant.NewHandler(tenantStore, auditLogger).WithCredentialsMailer(credMailer)
	moderatorHandler := tenant.NewModeratorHandler(pool, tenant.NewModeratorStore(), credMailer, auditLogger)
	referenceHandler := reference.NewHandler(pool, reference.NewStore())
	botHandler := bots.NewHandler(pool, botStore, webhooks, auditLogger, logger)
	catalogHandler := catalog.NewHandler(pool, botStore, catalogStore, auditLogger)
	orderHandler := orders.NewHandler(pool, botStore, orderStore, outboxStore, auditLogger)
	subscriberHandler := subscribers.NewHandler(pool, botStore, subscriberStore, auditLogger)
	mailingHandler := mailings.NewHandler(pool, botStore, mailingStore, outboxStore, tg, auditLogger)
	auditHandler := audit.NewHandler(pool)

	// Shop webhook
	registry := keyboards.NewRegistry(rdb, time.Duration(cfg.Redis.CallbackTTLHours)*time.Hour)
	deduper := shop.NewDeduper(rdb, time.Duration(cfg.Redis.DedupeTTLMinutes)*time.Minute)
	dispatcher := shop.NewDispatcher(tg, registry, botStore, subscriberStore, catalogStore, orderStore, auditLogger)
	shopHandler := shop.NewHandler(pool, telegram.NewVerifier(cfg.Telegram.WebhookSecret), deduper, botStore, dispatcher, auditLogger)

	rbacEngine := rbac.NewEvaluator(rbac.DefaultRoles())

	var devIdentity *auth.Identity
	if cfg.Auth.DevMode {
		slog.Warn("running in dev mode, authentication bypassed with 'Bearer dev'")
		devIdentity = &auth.Identity{
			UserID:          "dev-user",
			TenantID:        "dev-tenant",
			Roles:           []string{rbac.RoleOwner},
			IsPlatformAdmin: true,
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		Redis:              rdb,
		Auth:               tokenSvc,
		AuthHandler:        authHandler,
		RBAC:               rbacEngine,
		TenantHandler:      tenantHandler,
		ModeratorHandler:   moderatorHandler,
		ReferenceHandler:   referenceHandler,
		BotHandler:         botHandler,
		CatalogHandler:     catalogHandler,
		OrderHandler:       orderHandler,
		SubscriberHandler:  subscriberHandler,
		MailingHandler:     mailingHandler,
		ShopHandler:        shopHandler,
		AuditHandler:       auditHandler,
		RBACAuditLogger:    audit.RBACAdapter{Logger: auditLogger},
		DevMode:            cfg.Auth.DevMode,
		DevIdentity:        devIdentity,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
	})

	// Background workers
	outboxSender := newTelegramOutboxSender(pool, tg, botStore, mailingStore, subscriberStore)
	outboxWorker := buildOutboxWorker(pool, tenantStore, outboxStore, outboxSender, cfg.Outbox)
	scheduler := mailings.NewScheduler(mailingStore, subscriberStore, outboxStore, auditLogger)
	mailingWorker := buildMailingWorker(pool, tenantStore, scheduler, cfg.Mailings, cfg.Outbox.TenantScanPageSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return outboxWorker.Run(gctx) })
	g.Go(func() error { return mailingWorker.Run(gctx) })

	slog.Info("server ready",
		"addr", addr,
		"dev_mode", cfg.Auth.DevMode,
		"outbox", outboxWorker != nil,
		"mailings", mailingWorker != nil,
	)
	return g.Wait()
}
