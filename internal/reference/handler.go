package reference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
)

// Handler serves reference data. Reads are open to every moderator, writes
// are wrapped with platform admin checks by the server.
type Handler struct {
	pool  *pgxpool.Pool
	store *Store
}

func NewHandler(pool *pgxpool.Pool, store *Store) *Handler {
	return &Handler{pool: pool, store: store}
}

// HandleList serves GET /api/v1/reference/{kind}.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch r.PathValue("kind") {
	case "countries":
		result, err = orEmpty(h.store.ListCountries(ctx, h.pool))
	case "delivery-types":
		result, err = orEmpty(h.store.ListDeliveryTypes(ctx, h.pool))
	case "payment-types":
		result, err = orEmpty(h.store.ListPaymentTypes(ctx, h.pool))
	case "currencies":
		result, err = orEmpty(h.store.ListCurrencies(ctx, h.pool))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown reference kind"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing reference data failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCreate serves POST /api/v1/reference/{kind}.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	dec := json.NewDecoder(r.Body)

	var (
		created any
		err     error
	)
	switch r.PathValue("kind") {
	case "countries":
		created, err = decodeAndCreate(r.Context(), dec, h.pool, h.store.CreateCountry)
	case "delivery-types":
		created, err = decodeAndCreate(r.Context(), dec, h.pool, h.store.CreateDeliveryType)
	case "payment-types":
		created, err = decodeAndCreate(r.Context(), dec, h.pool, h.store.CreatePaymentType)
	case "currencies":
		created, err = decodeAndCreate(r.Context(), dec, h.pool, h.store.CreateCurrency)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown reference kind"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleDelete serves DELETE /api/v1/reference/{kind}/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := uuid.Parse(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrNotFound.Error()})
		return
	}
	if err := h.store.Delete(r.Context(), h.pool, r.PathValue("kind"), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errBadBody = errors.New("invalid request body")

func decodeAndCreate[T any](ctx context.Context, dec *json.Decoder, pool *pgxpool.Pool,
	create func(context.Context, database.Querier, T) (*T, error)) (*T, error) {
	var in T
	if err := dec.Decode(&in); err != nil {
		return nil, errBadBody
	}
	return create(ctx, pool, in)
}

func orEmpty[T any](items []T, err error) ([]T, error) {
	if items == nil {
		items = []T{}
	}
	return items, err
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reference update failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
