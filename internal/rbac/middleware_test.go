package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/auth"
	"github.com/shopfront-hq/shopfront/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setIdentity(r *http.Request, identity *auth.Identity) *http.Request {
	ctx := auth.WithIdentity(r.Context(), identity)
	return r.WithContext(ctx)
}

type recordingAudit struct {
	events []rbac.AuditEvent
}

func (a *recordingAudit) Log(_ context.Context, e rbac.AuditEvent) {
	a.events = append(a.events, e)
}

func TestRBACMiddleware_Allowed(t *testing.T) {
	eval := rbac.NewEvaluator(rbac.DefaultRoles())

	handler := rbac.RequirePermission(eval, rbac.PermCatalogRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := setIdentity(httptest.NewRequest(http.MethodGet, "/", nil), moderator())
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACMiddleware_DeniedIsAudited(t *testing.T) {
	eval := rbac.NewEvaluator(rbac.DefaultRoles())
	audit := &recordingAudit{}

	handler := rbac.RequirePermission(eval, rbac.PermBotsWrite, rbac.WithAuditLogger(audit))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	identity := &auth.Identity{
		UserID:   "6f1c2a8e-1111-4a4a-9a9a-000000000001",
		TenantID: "6f1c2a8e-2222-4a4a-9a9a-000000000002",
		Roles:    []string{rbac.RoleModerator},
	}
	req := setIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/bots", nil), identity)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, "no permission for bots:write", body["reason"])

	require.Len(t, audit.events, 1)
	evt := audit.events[0]
	assert.Equal(t, rbac.ActionAccessDenied, evt.Action)
	assert.Equal(t, "bots", evt.ResourceType)
	assert.Equal(t, "/api/v1/bots", evt.Metadata["path"])
	assert.Equal(t, http.MethodPost, evt.Metadata["method"])
	assert.Equal(t, identity.TenantID, evt.TenantID.String())
	require.NotNil(t, evt.UserID)
	assert.Equal(t, identity.UserID, evt.UserID.String())
	assert.Equal(t, rbac.PermBotsWrite, evt.Metadata["permission"])
}

func TestRBACMiddleware_NoIdentity(t *testing.T) {
	eval := rbac.NewEvaluator(rbac.DefaultRoles())

	handler := rbac.RequirePermission(eval, rbac.PermCatalogRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePlatformAdmin(t *testing.T) {
	handler := rbac.RequirePlatformAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, setIdentity(httptest.NewRequest(http.MethodPost, "/", nil), moderator()))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, setIdentity(httptest.NewRequest(http.MethodPost, "/", nil), &auth.Identity{UserID: "a", IsPlatformAdmin: true}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
