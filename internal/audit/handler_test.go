package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"

func TestHandleListEvents(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		tenant string
		status int
	}{
		{"no filters", "", testTenant, http.StatusOK},
		{"limit", "?limit=10", testTenant, http.StatusOK},
		{"limit out of range falls back", "?limit=5000", testTenant, http.StatusOK},
		{"action", "?action=order.accepted", testTenant, http.StatusOK},
		{"resource type", "?resource_type=product", testTenant, http.StatusOK},
		{"source", "?source=telegram", testTenant, http.StatusOK},
		{"before", "?before=2026-02-26T00:00:00Z", testTenant, http.StatusOK},
		{"user id", "?user_id=" + testTenant, testTenant, http.StatusOK},
		{"composed", "?action=bot.created&resource_type=bot&source=api&limit=25", testTenant, http.StatusOK},
		{"invalid user id", "?user_id=not-a-uuid", testTenant, http.StatusBadRequest},
		{"invalid after", "?after=yesterday", testTenant, http.StatusBadRequest},
		{"missing tenant", "", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events"+tt.query, nil)
			if tt.tenant != "" {
				req = req.WithContext(middleware.WithTenantID(req.Context(), tt.tenant))
			}
			w := httptest.NewRecorder()

			h.HandleListEvents(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"count":0`)
				assert.Contains(t, w.Body.String(), `"events":[]`)
			}
		})
	}
}

func TestParseListParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/audit/events?action=order.accepted&after=2026-01-01T00:00:00Z&limit=300", nil)

	p, err := parseListParams(req, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, p.Action)
	assert.Equal(t, ActionOrderAccepted, *p.Action)
	require.NotNil(t, p.After)
	assert.Equal(t, 2026, p.After.Year())
	assert.Equal(t, defaultListLimit, p.Limit)
	assert.Nil(t, p.Before)
}
