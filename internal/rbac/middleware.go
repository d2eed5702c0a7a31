package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/auth"
)

// ActionAccessDenied is recorded for every refused permission check.
const ActionAccessDenied = "access.denied"

// AuditLogger receives denial events. audit.RBACAdapter implements it.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent)
}

// AuditEvent carries the fields of audit.Event that a denial fills in.
type AuditEvent struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string
}

type MiddlewareOption func(*guard)

func WithAuditLogger(logger AuditLogger) MiddlewareOption {
	return func(g *guard) { g.audit = logger }
}

type guard struct {
	engine     PolicyEngine
	permission string
	audit      AuditLogger
}

// RequirePermission admits the request only when the caller's roles grant
// permission. Missing identity is 401, a refusal is 403.
func RequirePermission(engine PolicyEngine, permission string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	g := &guard{engine: engine, permission: permission}
	for _, opt := range opts {
		opt(g)
	}
	return g.wrap
}

func (g *guard) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		if identity == nil {
			writeError(w, http.StatusUnauthorized, "authentication required", "")
			return
		}

		decision, err := g.engine.Authorize(r.Context(), identity, g.permission)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "authorization check failed", "")
			return
		}
		if !decision.Allowed {
			if g.audit != nil {
				g.audit.Log(r.Context(), g.denial(r, identity, decision.Reason))
			}
			writeError(w, http.StatusForbidden, "forbidden", decision.Reason)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *guard) denial(r *http.Request, identity *auth.Identity, reason string) AuditEvent {
	resource, _, _ := strings.Cut(g.permission, ":")
	evt := AuditEvent{
		Action:       ActionAccessDenied,
		ResourceType: resource,
		Source:       "api",
		Metadata: map[string]any{
			"permission": g.permission,
			"reason":     reason,
			"method":     r.Method,
			"path":       r.URL.Path,
		},
	}
	if tid, err := uuid.Parse(identity.TenantID); err == nil {
		evt.TenantID = tid
	}
	if uid, err := uuid.Parse(identity.UserID); err == nil {
		evt.UserID = &uid
	}
	return evt
}

// RequirePlatformAdmin guards operator routes: tenants and reference data writes.
func RequirePlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		switch {
		case identity == nil:
			writeError(w, http.StatusUnauthorized, "authentication required", "")
		case !identity.IsPlatformAdmin:
			writeError(w, http.StatusForbidden, "forbidden", "platform admin required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func writeError(w http.ResponseWriter, status int, message, reason string) {
	body := map[string]string{"error": message}
	if reason != "" {
		body["reason"] = reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
