package bots

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/auth"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

// Handler serves /api/v1/bots.
type Handler struct {
	pool     *pgxpool.Pool
	store    *Store
	webhooks *Webhooks
	auditLog audit.Logger
	logger   *slog.Logger
}

func NewHandler(pool *pgxpool.Pool, store *Store, webhooks *Webhooks, auditLog audit.Logger, logger *slog.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pool: pool, store: store, webhooks: webhooks, auditLog: auditLog, logger: logger}
}

// HandleCreate creates a bot and registers its webhook.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	var ownerID string
	if identity := auth.GetIdentity(r.Context()); identity != nil {
		ownerID = identity.UserID
	}

	var b *Bot
	err := database.WithTenantTx(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var err error
		b, err = h.store.Create(ctx, q, in, ownerID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.registerWebhook(r.Context(), tenantID, b)
	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionBotCreated, "bot", b.ID,
		map[string]any{"slug": b.Slug, "webhook_set": b.IsWebhookSet}))

	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var list []*Bot
	err := database.WithTenantConnection(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			var err error
			list, err = h.store.List(ctx, q)
			return err
		})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing bots failed"})
		return
	}
	if list == nil {
		list = []*Bot{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleUpdate rewrites a bot and re-registers its webhook.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	var b *Bot
	err := database.WithTenantTx(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		current, err := h.store.GetBySlug(ctx, q, r.PathValue("slug"))
		if err != nil {
			return err
		}
		b, err = h.store.Update(ctx, q, current.ID, in)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.registerWebhook(r.Context(), tenantID, b)
	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionBotUpdated, "bot", b.ID,
		map[string]any{"slug": b.Slug, "webhook_set": b.IsWebhookSet}))

	writeJSON(w, http.StatusOK, b)
}

// HandleDelete removes a bot. Dropping the webhook is best effort.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	var b *Bot
	err := database.WithTenantTx(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		current, err := h.store.GetBySlug(ctx, q, r.PathValue("slug"))
		if err != nil {
			return err
		}
		b, err = h.store.Delete(ctx, q, current.ID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	_ = h.webhooks.Unregister(b)
	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionBotDeleted, "bot", b.ID,
		map[string]any{"slug": b.Slug}))

	w.WriteHeader(http.StatusNoContent)
}

// HandleWebhookInfo proxies getWebhookInfo for the bot.
func (h *Handler) HandleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	info, err := h.webhooks.Info(b)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "telegram request failed"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleMe proxies getMe for the bot.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	me, err := h.webhooks.Me(b)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "telegram request failed"})
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (h *Handler) HandleSetWebhook(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	tenantID := middleware.GetTenantID(r.Context())
	if !h.registerWebhook(r.Context(), tenantID, b) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "telegram rejected the webhook"})
		return
	}
	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionBotWebhookSet, "bot", b.ID, nil))
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleUnsetWebhook(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBot(w, r)
	if !ok {
		return
	}
	if err := h.webhooks.Unregister(b); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "telegram request failed"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		return h.store.SetWebhookState(ctx, q, b.ID, false)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	b.IsWebhookSet = false
	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionBotWebhookUnset, "bot", b.ID, nil))
	writeJSON(w, http.StatusOK, b)
}

// registerWebhook sets the webhook and stores the outcome on b.
func (h *Handler) registerWebhook(ctx context.Context, tenantID string, b *Bot) bool {
	set := h.webhooks.Register(b)
	err := database.WithTenantConnection(ctx, h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		return h.store.SetWebhookState(ctx, q, b.ID, set)
	})
	if err != nil {
		h.logger.Error("saving webhook state failed", "bot_id", b.ID, "error", err)
	}
	b.IsWebhookSet = set
	return set
}

func (h *Handler) loadBot(w http.ResponseWriter, r *http.Request) (*Bot, bool) {
	var b *Bot
	err := database.WithTenantConnection(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			var err error
			b, err = h.store.GetBySlug(ctx, q, r.PathValue("slug"))
			return err
		})
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return b, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBotNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrTokenTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrNameTooLong), errors.Is(err, ErrTokenRequired),
		errors.Is(err, ErrTermsOfAgreement), errors.Is(err, ErrInvalidReference):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "bot request failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
