package tenant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/auth"
)

// Handler handles tenant HTTP endpoints.
type Handler struct {
	store    *Store
	auditLog audit.Logger
	mailer   *CredentialsMailer
}

// NewHandler creates a new tenant handler.
func NewHandler(store *Store, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{store: store, auditLog: auditLog}
}

// WithCredentialsMailer sets the mailer used to send the first owner's password.
func (h *Handler) WithCredentialsMailer(m *CredentialsMailer) *Handler {
	h.mailer = m
	return h
}

// RegisterRoutes registers tenant routes on the given mux.
// All routes require platform admin auth (applied externally via middleware).
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tenants", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/tenants/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/v1/tenants", h.HandleList)
	mux.HandleFunc("PUT /api/v1/tenants/{id}/status", h.HandleSetStatus)
}

type createTenantRequest struct {
	Name  string        `json:"name"`
	Slug  string        `json:"slug"`
	Owner *NewModerator `json:"owner,omitempty"`
}

type createTenantResponse struct {
	*Tenant
	Owner *Moderator `json:"owner,omitempty"`
}

// HandleCreate creates a new tenant, optionally with its first owner.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	req.Slug = slugFor(req.Name, req.Slug)

	var (
		t        *Tenant
		owner    *Moderator
		password string
		err      error
	)
	if req.Owner == nil {
		t, err = h.store.Create(r.Context(), req.Name, req.Slug)
	} else {
		if err = req.Owner.Validate(); err == nil {
			password, err = passwordOrGenerated(req.Owner.Password)
		}
		var hash string
		if err == nil {
			hash, err = auth.HashPassword(password)
		}
		if err == nil {
			t, owner, err = h.store.CreateWithOwner(r.Context(), req.Name, req.Slug, *req.Owner, hash)
		}
	}
	if err != nil {
		if status, ok := moderatorErrorStatus(err); ok {
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, ErrInvalidSlug) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, ErrSlugTaken) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "tenant creation failed"})
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), t.ID, audit.ActionTenantCreated, "tenant", t.ID,
		map[string]any{"slug": t.Slug}))
	if owner != nil {
		h.auditLog.Log(r.Context(), audit.API(r.Context(), t.ID, audit.ActionModeratorCreated, "user", owner.ID,
			map[string]any{"username": owner.Username, "role": owner.Role}))
		h.mailer.Send(r.Context(), owner, password)
	}

	writeJSON(w, http.StatusCreated, createTenantResponse{Tenant: t, Owner: owner})
}

// HandleGet returns a tenant by ID.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing tenant id"})
		return
	}

	t, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fetching tenant failed"})
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// HandleList returns all tenants.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing tenants failed"})
		return
	}

	if tenants == nil {
		tenants = []Tenant{}
	}

	writeJSON(w, http.StatusOK, tenants)
}

// HandleSetStatus suspends or reactivates a tenant. Suspended tenants keep
// their data but background workers skip them.
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.store.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, ErrTenantNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "updating tenant failed"})
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), t.ID, audit.ActionTenantStatusChanged, "tenant", t.ID,
		map[string]any{"status": t.Status}))
	writeJSON(w, http.StatusOK, t)
}

func passwordOrGenerated(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	return GeneratePassword()
}

func moderatorErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, ErrEmailInvalid), errors.Is(err, ErrUsernameInvalid),
		errors.Is(err, ErrRoleInvalid), errors.Is(err, auth.ErrPasswordTooShort):
		return http.StatusBadRequest, true
	case errors.Is(err, ErrLoginTaken):
		return http.StatusConflict, true
	case errors.Is(err, ErrModeratorNotFound):
		return http.StatusNotFound, true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
