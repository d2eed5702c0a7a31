package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

// Handler serves /api/v1/bots/{slug}/subscribers.
type Handler struct {
	pool     *pgxpool.Pool
	bots     *bots.Store
	store    *Store
	auditLog audit.Logger
}

func NewHandler(pool *pgxpool.Pool, botStore *bots.Store, store *Store, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{pool: pool, bots: botStore, store: store, auditLog: auditLog}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var list []Subscriber
	err := database.WithTenantConnection(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
			if err != nil {
				return err
			}
			list, err = h.store.List(ctx, q, b.ID)
			return err
		})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []Subscriber{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleBan(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.store.Ban, audit.ActionSubscriberBanned)
}

func (h *Handler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.store.Unban, audit.ActionSubscriberUnbanned)
}

type banFunc func(ctx context.Context, q database.Querier, botID, id string) (*Subscriber, error)

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, apply banFunc, action string) {
	tenantID := middleware.GetTenantID(r.Context())
	var sub *Subscriber
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
		if err != nil {
			return err
		}
		sub, err = apply(ctx, q, b.ID, r.PathValue("id"))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, action, "subscriber", sub.ID,
		map[string]any{"chat_id": sub.ChatID}))
	writeJSON(w, http.StatusOK, sub)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bots.ErrBotNotFound), errors.Is(err, ErrSubscriberNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "subscriber request failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
