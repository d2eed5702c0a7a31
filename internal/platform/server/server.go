package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/auth"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/mailings"
	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
	"github.com/shopfront-hq/shopfront/internal/rbac"
	"github.com/shopfront-hq/shopfront/internal/reference"
	"github.com/shopfront-hq/shopfront/internal/shop"
	"github.com/shopfront-hq/shopfront/internal/subscribers"
	"github.com/shopfront-hq/shopfront/internal/tenant"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Redis              *redis.Client
	Auth               *auth.TokenService
	AuthHandler        *auth.Handler
	RBAC               *rbac.Evaluator
	TenantHandler      *tenant.Handler
	ModeratorHandler   *tenant.ModeratorHandler
	ReferenceHandler   *reference.Handler
	BotHandler         *bots.Handler
	CatalogHandler     *catalog.Handler
	OrderHandler       *orders.Handler
	SubscriberHandler  *subscribers.Handler
	MailingHandler     *mailings.Handler
	ShopHandler        *shop.Handler
	AuditHandler       *audit.Handler
	RBACAuditLogger    rbac.AuditLogger
	DevMode            bool
	DevIdentity        *auth.Identity
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	handler      http.Handler
	checks       []readinessCheck
	logger       *slog.Logger
}

// readinessCheck is one dependency /readyz reports on.
type readinessCheck struct {
	name  string
	probe func(context.Context) error
}

var errNotConfigured = errors.New("not configured")

func readinessChecks(deps Dependencies) []readinessCheck {
	db := readinessCheck{name: "database", probe: func(context.Context) error { return errNotConfigured }}
	if deps.Pool != nil {
		db.probe = deps.Pool.Ping
	}
	checks := []readinessCheck{db}
	if deps.Redis != nil {
		checks = append(checks, readinessCheck{name: "redis", probe: func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

func New(addr string, deps Dependencies) *Server {
	// Protected routes mux, wrapped with auth middleware
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.TenantContext(protectedHandler)
	if deps.Auth != nil {
		if deps.DevMode && deps.DevIdentity != nil {
			protectedHandler = auth.MiddlewareWithDevMode(deps.Auth, deps.DevIdentity)(protectedHandler)
		} else {
			protectedHandler = auth.Middleware(deps.Auth)(protectedHandler)
		}
	}

	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		checks:       readinessChecks(deps),
		logger:       deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(topMux)
	}
	if deps.ShopHandler != nil {
		topMux.HandleFunc("POST /telegram/api/{slug}/", deps.ShopHandler.HandleWebhook)
	}

	var rbacOpts []rbac.MiddlewareOption
	if deps.RBACAuditLogger != nil {
		rbacOpts = append(rbacOpts, rbac.WithAuditLogger(deps.RBACAuditLogger))
	}
	guard := func(pattern, permission string, h http.HandlerFunc) {
		protectedMux.Handle(pattern, rbac.RequirePermission(deps.RBAC, permission, rbacOpts...)(h))
	}
	admin := func(pattern string, h http.HandlerFunc) {
		protectedMux.Handle(pattern, rbac.RequirePlatformAdmin(h))
	}

	// Platform admin routes (tenant provisioning)
	if deps.TenantHandler != nil {
		admin("POST /api/v1/tenants", deps.TenantHandler.HandleCreate)
		admin("GET /api/v1/tenants/{id}", deps.TenantHandler.HandleGet)
		admin("GET /api/v1/tenants", deps.TenantHandler.HandleList)
		admin("PUT /api/v1/tenants/{id}/status", deps.TenantHandler.HandleSetStatus)
	}

	// Reference data: any moderator reads, platform admins write
	if deps.ReferenceHandler != nil && deps.RBAC != nil {
		guard("GET /api/v1/reference/{kind}", rbac.PermReferenceRead, deps.ReferenceHandler.HandleList)
		admin("POST /api/v1/reference/{kind}", deps.ReferenceHandler.HandleCreate)
		admin("DELETE /api/v1/reference/{kind}/{id}", deps.ReferenceHandler.HandleDelete)
	}

	if deps.ModeratorHandler != nil && deps.RBAC != nil {
		guard("POST /api/v1/moderators", rbac.PermModeratorsWrite, deps.ModeratorHandler.HandleCreate)
		guard("GET /api/v1/moderators", rbac.PermModeratorsRead, deps.ModeratorHandler.HandleList)
		guard("DELETE /api/v1/moderators/{id}", rbac.PermModeratorsWrite, deps.ModeratorHandler.HandleDeactivate)
		// Every authenticated moderator may change their own password.
		protectedMux.HandleFunc("PUT /api/v1/moderators/me/password", deps.ModeratorHandler.HandleChangePassword)
	}

	if deps.BotHandler != nil && deps.RBAC != nil {
		h := deps.BotHandler
		guard("POST /api/v1/bots", rbac.PermBotsWrite, h.HandleCreate)
		guard("GET /api/v1/bots", rbac.PermBotsRead, h.HandleList)
		guard("GET /api/v1/bots/{slug}", rbac.PermBotsRead, h.HandleGet)
		guard("PUT /api/v1/bots/{slug}", rbac.PermBotsWrite, h.HandleUpdate)
		guard("DELETE /api/v1/bots/{slug}", rbac.PermBotsWrite, h.HandleDelete)
		guard("GET /api/v1/bots/{slug}/me", rbac.PermBotsRead, h.HandleMe)
		guard("GET /api/v1/bots/{slug}/webhook", rbac.PermBotsRead, h.HandleWebhookInfo)
		guard("POST /api/v1/bots/{slug}/webhook", rbac.PermBotsWrite, h.HandleSetWebhook)
		guard("DELETE /api/v1/bots/{slug}/webhook", rbac.PermBotsWrite, h.HandleUnsetWebhook)
	}

	if deps.CatalogHandler != nil && deps.RBAC != nil {
		h := deps.CatalogHandler
		guard("GET /api/v1/bots/{slug}/categories", rbac.PermCatalogRead, h.HandleListCategories)
		guard("POST /api/v1/bots/{slug}/categories", rbac.PermCatalogWrite, h.HandleCreateCategory)
		guard("PUT /api/v1/bots/{slug}/categories/{id}", rbac.PermCatalogWrite, h.HandleUpdateCategory)
		guard("DELETE /api/v1/bots/{slug}/categories/{id}", rbac.PermCatalogWrite, h.HandleDeleteCategory)
		guard("GET /api/v1/bots/{slug}/products", rbac.PermCatalogRead, h.HandleListProducts)
		guard("POST /api/v1/bots/{slug}/products", rbac.PermCatalogWrite, h.HandleCreateProduct)
		guard("GET /api/v1/bots/{slug}/products/{id}", rbac.PermCatalogRead, h.HandleGetProduct)
		guard("PUT /api/v1/bots/{slug}/products/{id}", rbac.PermCatalogWrite, h.HandleUpdateProduct)
		guard("DELETE /api/v1/bots/{slug}/products/{id}", rbac.PermCatalogWrite, h.HandleDeleteProduct)
		guard("POST /api/v1/bots/{slug}/products/{id}/photos", rbac.PermCatalogWrite, h.HandleAddPhoto)
		guard("DELETE /api/v1/bots/{slug}/products/{id}/photos/{photoID}", rbac.PermCatalogWrite, h.HandleDeletePhoto)
		guard("POST /api/v1/bots/{slug}/products/import", rbac.PermCatalogWrite, h.HandleImport)
		guard("GET /api/v1/catalog/import-template", rbac.PermCatalogRead, h.HandleImportTemplate)
	}

	if deps.OrderHandler != nil && deps.RBAC != nil {
		h := deps.OrderHandler
		guard("GET /api/v1/bots/{slug}/orders", rbac.PermOrdersRead, h.HandleList)
		guard("GET /api/v1/bots/{slug}/orders/{id}", rbac.PermOrdersRead, h.HandleGet)
		guard("POST /api/v1/bots/{slug}/orders/{id}/accept", rbac.PermOrdersWrite, h.HandleAccept)
		guard("POST /api/v1/bots/{slug}/orders/{id}/decline", rbac.PermOrdersWrite, h.HandleDecline)
		guard("POST /api/v1/bots/{slug}/orders/{id}/complete", rbac.PermOrdersWrite, h.HandleComplete)
	}

	if deps.SubscriberHandler != nil && deps.RBAC != nil {
		h := deps.SubscriberHandler
		guard("GET /api/v1/bots/{slug}/subscribers", rbac.PermSubscribersRead, h.HandleList)
		guard("POST /api/v1/bots/{slug}/subscribers/{id}/ban", rbac.PermSubscribersBan, h.HandleBan)
		guard("POST /api/v1/bots/{slug}/subscribers/{id}/unban", rbac.PermSubscribersBan, h.HandleUnban)
	}

	if deps.MailingHandler != nil && deps.RBAC != nil {
		h := deps.MailingHandler
		guard("GET /api/v1/bots/{slug}/mailings", rbac.PermMailingsRead, h.HandleList)
		guard("POST /api/v1/bots/{slug}/mailings", rbac.PermMailingsWrite, h.HandleCreate)
		guard("GET /api/v1/bots/{slug}/mailings/{id}", rbac.PermMailingsRead, h.HandleGet)
		guard("PUT /api/v1/bots/{slug}/mailings/{id}", rbac.PermMailingsWrite, h.HandleUpdate)
		guard("DELETE /api/v1/bots/{slug}/mailings/{id}", rbac.PermMailingsWrite, h.HandleDelete)
		guard("POST /api/v1/bots/{slug}/mailings/{id}/send", rbac.PermMailingsWrite, h.HandleSendNow)
		guard("POST /api/v1/bots/{slug}/mailings/{id}/recall", rbac.PermMailingsWrite, h.HandleRecall)
	}

	if deps.AuditHandler != nil && deps.RBAC != nil {
		guard("GET /api/v1/audit/events", rbac.PermAuditRead, deps.AuditHandler.HandleListEvents)
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness probes every dependency and names the ones that fail.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.probe(ctx); err != nil {
			failed[c.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
