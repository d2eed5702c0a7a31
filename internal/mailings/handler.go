package mailings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/outbox"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

// MessageDeleter removes delivered messages from subscriber chats.
type MessageDeleter interface {
	DeleteMessage(token string, chatID int64, messageID int) error
}

// Handler serves /api/v1/bots/{slug}/mailings.
type Handler struct {
	pool     *pgxpool.Pool
	bots     *bots.Store
	store    *Store
	outbox   *outbox.Store
	deleter  MessageDeleter
	auditLog audit.Logger
}

func NewHandler(pool *pgxpool.Pool, botStore *bots.Store, store *Store, outboxStore *outbox.Store, deleter MessageDeleter, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{
		pool:     pool,
		bots:     botStore,
		store:    store,
		outbox:   outboxStore,
		deleter:  deleter,
		auditLog: auditLog,
	}
}

type postResponse struct {
	*Post
	Delivery map[outbox.Status]int `json:"delivery,omitempty"`
}

// withBot resolves {slug} and runs fn inside the tenant transaction.
func (h *Handler) withBot(r *http.Request, fn func(ctx context.Context, q database.Querier, b *bots.Bot) error) error {
	return database.WithTenantTx(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
			if err != nil {
				return err
			}
			return fn(ctx, q, b)
		})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var list []Post
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		list, err = h.store.List(ctx, q, b.ID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []Post{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	var resp postResponse
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		resp.Post, err = h.store.Get(ctx, q, b.ID, r.PathValue("id"))
		if err != nil {
			return err
		}
		resp.Delivery, err = h.outbox.CountByStatus(ctx, q, resp.Post.ID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	var p *Post
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		p, err = h.store.Create(ctx, q, b.ID, in)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, audit.ActionMailingCreated, p)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	var p *Post
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		p, err = h.store.Update(ctx, q, b.ID, r.PathValue("id"), in)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, audit.ActionMailingUpdated, p)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleSendNow(w http.ResponseWriter, r *http.Request) {
	var p *Post
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		p, err = h.store.SendNow(ctx, q, b.ID, r.PathValue("id"))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, audit.ActionMailingUpdated, p)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		return h.store.Delete(ctx, q, b.ID, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionMailingDeleted, "post", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type recallResponse struct {
	Deleted  int   `json:"deleted"`
	Failed   int   `json:"failed"`
	Canceled int64 `json:"canceled"`
}

// HandleRecall deletes every delivered message of the post from the chats
// and stops deliveries that have not happened yet.
func (h *Handler) HandleRecall(w http.ResponseWriter, r *http.Request) {
	var (
		resp recallResponse
		post *Post
	)
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		post, err = h.store.Get(ctx, q, b.ID, r.PathValue("id"))
		if err != nil {
			return err
		}
		if post.Status != StatusSending && post.Status != StatusSent {
			return ErrNotRecallable
		}

		resp.Canceled, err = h.outbox.CancelPending(ctx, q, post.ID, "recalled")
		if err != nil {
			return err
		}

		sent, err := h.store.ListSentMessages(ctx, q, post.ID)
		if err != nil {
			return err
		}
		for _, m := range sent {
			if err := h.deleter.DeleteMessage(b.Token, m.ChatID, m.MessageID); err != nil {
				slog.Warn("recalling message failed", "post_id", post.ID, "chat_id", m.ChatID, "error", err)
				resp.Failed++
				continue
			}
			if err := h.store.DeleteSentMessage(ctx, q, m.ID); err != nil {
				return err
			}
			resp.Deleted++
		}
		return h.store.SetStatus(ctx, q, post.ID, StatusCanceled)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionMailingRecalled, "post", post.ID,
		map[string]any{"deleted": resp.Deleted, "failed": resp.Failed, "canceled": resp.Canceled}))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) audit(r *http.Request, action string, p *Post) {
	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		action, "post", p.ID, map[string]any{"status": p.Status}))
}

func decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return in, false
	}
	return in, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bots.ErrBotNotFound), errors.Is(err, ErrPostNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrTextRequired), errors.Is(err, ErrTextTooLong),
		errors.Is(err, ErrInvalidPhoto), errors.Is(err, ErrSendTimeNeeded):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotEditable), errors.Is(err, ErrNotRecallable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "mailing request failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
