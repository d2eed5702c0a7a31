package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

// Handler serves /api/v1/bots/{slug}/orders.
type Handler struct {
	pool     *pgxpool.Pool
	bots     *bots.Store
	store    *Store
	outbox   *outbox.Store
	auditLog audit.Logger
}

func NewHandler(pool *pgxpool.Pool, botStore *bots.Store, store *Store, outboxStore *outbox.Store, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{pool: pool, bots: botStore, store: store, outbox: outboxStore, auditLog: auditLog}
}

type resolveRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	var list []Order
	err := database.WithTenantConnection(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
			if err != nil {
				return err
			}
			list, err = h.store.List(ctx, q, b.ID, status)
			return err
		})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	var o *Order
	err := database.WithTenantConnection(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
			if err != nil {
				return err
			}
			o, err = h.store.Get(ctx, q, b.ID, r.PathValue("id"))
			return err
		})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.store.Accept, audit.ActionOrderAccepted)
}

func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.store.Decline, audit.ActionOrderDeclined)
}

func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	complete := func(ctx context.Context, q database.Querier, botID, id, _ string) (*Order, error) {
		return h.store.Complete(ctx, q, botID, id)
	}
	h.resolve(w, r, complete, audit.ActionOrderCompleted)
}

type resolveFunc func(ctx context.Context, q database.Querier, botID, id, comment string) (*Order, error)

// resolve applies a status change and queues the subscriber notification
// in the same transaction.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, apply resolveFunc, action string) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	var o *Order
	err := database.WithTenantTx(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
		if err != nil {
			return err
		}
		o, err = apply(ctx, q, b.ID, r.PathValue("id"), req.Comment)
		if err != nil {
			return err
		}
		_, err = h.outbox.Enqueue(ctx, q, outbox.NewJob{
			BotID:   b.ID,
			Kind:    outbox.KindOrderStatus,
			ChatID:  o.ChatID,
			Message: outbox.Message{Text: StatusNotification(o, b.TelegramOperator)},
		})
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("order status changed", "order_id", o.ID, "number", o.Number, "status", o.Status)
	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, action, "order", o.ID,
		map[string]any{"number": o.Number, "status": o.Status}))
	writeJSON(w, http.StatusOK, o)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bots.ErrBotNotFound), errors.Is(err, ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order request failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
