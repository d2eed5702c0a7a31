package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves audit query endpoints.
type Handler struct {
	pool  *pgxpool.Pool
	store *Store
}

// NewHandler creates an audit query handler. A nil pool answers with an
// empty list.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool, store: NewStore()}
}

// HandleListEvents returns audit events for the current tenant.
// GET /api/v1/audit/events?action=&resource_type=&source=&user_id=&after=&before=&limit=
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(middleware.GetTenantID(r.Context()))
	if err != nil {
		writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	params, err := parseListParams(r, tenantID)
	if err != nil {
		writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.pool == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []Record{}, "count": 0})
		return
	}

	var records []Record
	err = database.WithTenantConnection(r.Context(), h.pool, tenantID.String(), func(ctx context.Context, q database.Querier) error {
		var listErr error
		records, listErr = h.store.ListEvents(ctx, q, params)
		return listErr
	})
	if err != nil {
		slog.Error("listing audit events", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if records == nil {
		records = []Record{}
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": records, "count": len(records)})
}

type paramError string

func (e paramError) Error() string { return string(e) }

func parseListParams(r *http.Request, tenantID uuid.UUID) (ListEventsParams, error) {
	q := r.URL.Query()
	p := ListEventsParams{TenantID: tenantID, Limit: defaultListLimit}

	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxListLimit {
			p.Limit = n
		}
	}
	if v := q.Get("action"); v != "" {
		p.Action = &v
	}
	if v := q.Get("resource_type"); v != "" {
		p.ResourceType = &v
	}
	if v := q.Get("source"); v != "" {
		p.Source = &v
	}
	if raw := q.Get("user_id"); raw != "" {
		uid, err := uuid.Parse(raw)
		if err != nil {
			return p, paramError("invalid user_id")
		}
		p.UserID = &uid
	}
	if raw := q.Get("after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return p, paramError("invalid after timestamp")
		}
		p.After = &t
	}
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return p, paramError("invalid before timestamp")
		}
		p.Before = &t
	}
	return p, nil
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
