package shop

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/telegram"
)

// Handler receives the webhook deliveries of every bot.
type Handler struct {
	pool       *pgxpool.Pool
	verifier   *telegram.Verifier
	dedupe     *Deduper
	bots       *bots.Store
	dispatcher *Dispatcher
	auditLog   audit.Logger
}

// NewHandler creates a webhook handler. A nil dedupe disables duplicate
// detection.
func NewHandler(pool *pgxpool.Pool, verifier *telegram.Verifier, dedupe *Deduper, botStore *bots.Store, dispatcher *Dispatcher, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{
		pool:       pool,
		verifier:   verifier,
		dedupe:     dedupe,
		bots:       botStore,
		dispatcher: dispatcher,
		auditLog:   auditLog,
	}
}

// HandleWebhook processes one update.
// POST /telegram/api/{slug}/
//
// Once the bot is known the answer is always 200, so Telegram does not
// redeliver updates that failed on our side.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	if err := h.verifier.Verify(r.Header); err != nil {
		h.reject(r.Context(), slug, err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook secret"})
		return
	}

	route, err := h.bots.Route(r.Context(), h.pool, slug)
	if err != nil {
		if errors.Is(err, bots.ErrBotNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "bot not found"})
			return
		}
		slog.Error("resolving webhook bot failed", "bot", slug, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		slog.Warn("invalid telegram update", "bot", slug, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.dedupe != nil {
		first, err := h.dedupe.FirstSeen(r.Context(), route.BotID, upd.UpdateID)
		switch {
		case err != nil:
			slog.Warn("update dedupe unavailable", "bot", slug, "update_id", upd.UpdateID, "error", err)
		case !first:
			slog.Debug("duplicate telegram update", "bot", slug, "update_id", upd.UpdateID)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	err = database.WithTenantConnection(r.Context(), h.pool, route.TenantID, func(ctx context.Context, q database.Querier) error {
		bot, err := h.bots.GetByID(ctx, q, route.BotID)
		if err != nil {
			return err
		}
		return h.dispatcher.Dispatch(ctx, q, bot, &upd)
	})
	if err != nil {
		slog.Error("handling telegram update failed", "bot", slug, "update_id", upd.UpdateID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// reject audits a delivery with a bad secret when the slug names a bot.
func (h *Handler) reject(ctx context.Context, slug string, cause error) {
	slog.Warn("telegram webhook rejected", "bot", slug, "error", cause)
	route, err := h.bots.Route(ctx, h.pool, slug)
	if err != nil {
		return
	}
	h.auditLog.Log(ctx, audit.Telegram(route.TenantID, audit.ActionWebhookRejected, "bot", route.BotID,
		map[string]any{"reason": cause.Error()}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
