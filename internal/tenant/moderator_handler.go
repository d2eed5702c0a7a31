package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/auth"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

// ModeratorHandler handles moderator endpoints within the caller's tenant.
type ModeratorHandler struct {
	pool     *pgxpool.Pool
	store    *ModeratorStore
	mailer   *CredentialsMailer
	auditLog audit.Logger
}

func NewModeratorHandler(pool *pgxpool.Pool, store *ModeratorStore, mailer *CredentialsMailer, auditLog audit.Logger) *ModeratorHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &ModeratorHandler{pool: pool, store: store, mailer: mailer, auditLog: auditLog}
}

// HandleCreate adds a moderator. A password is generated when none is given
// and the credentials are emailed to the new account.
func (h *ModeratorHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var req NewModerator
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	password, err := passwordOrGenerated(req.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "moderator creation failed"})
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if status, ok := moderatorErrorStatus(err); ok {
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "moderator creation failed"})
		return
	}

	var m *Moderator
	err = database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var createErr error
		m, createErr = h.store.Create(ctx, q, tenantID, req, hash)
		return createErr
	})
	if err != nil {
		if status, ok := moderatorErrorStatus(err); ok {
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "moderator creation failed"})
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionModeratorCreated, "user", m.ID,
		map[string]any{"username": m.Username, "role": m.Role}))
	h.mailer.Send(r.Context(), m, password)

	writeJSON(w, http.StatusCreated, m)
}

// HandleList returns every moderator of the tenant.
func (h *ModeratorHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var moderators []Moderator
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var listErr error
		moderators, listErr = h.store.List(ctx, q, tenantID)
		return listErr
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing moderators failed"})
		return
	}

	if moderators == nil {
		moderators = []Moderator{}
	}

	writeJSON(w, http.StatusOK, moderators)
}

// HandleChangePassword lets the caller replace their own password.
func (h *ModeratorHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "changing password failed"})
		return
	}

	err = database.WithTenantConnection(r.Context(), h.pool, identity.TenantID, func(ctx context.Context, q database.Querier) error {
		current, getErr := h.store.PasswordHash(ctx, q, identity.TenantID, identity.UserID)
		if getErr != nil {
			return getErr
		}
		if checkErr := auth.CheckPassword(current, req.OldPassword); checkErr != nil {
			return checkErr
		}
		return h.store.SetPassword(ctx, q, identity.TenantID, identity.UserID, hash)
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "old password does not match"})
			return
		}
		if errors.Is(err, ErrModeratorNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "moderator not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "changing password failed"})
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), identity.TenantID, audit.ActionModeratorPasswordChanged,
		"user", identity.UserID, nil))

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDeactivate blocks another moderator of the tenant.
func (h *ModeratorHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid moderator id"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	if identity := auth.GetIdentity(r.Context()); identity != nil && identity.UserID == id {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrSelfDeactivation.Error()})
		return
	}

	var m *Moderator
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var deactivateErr error
		m, deactivateErr = h.store.Deactivate(ctx, q, tenantID, id)
		return deactivateErr
	})
	if err != nil {
		if errors.Is(err, ErrModeratorNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "moderator not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "deactivating moderator failed"})
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), tenantID, audit.ActionModeratorDeactivated, "user", m.ID, nil))

	writeJSON(w, http.StatusOK, m)
}
