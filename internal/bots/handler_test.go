package bots_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBotsMux(h *bots.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bots", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/bots", h.HandleList)
	mux.HandleFunc("GET /api/v1/bots/{slug}", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/bots/{slug}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/bots/{slug}", h.HandleDelete)
	mux.HandleFunc("GET /api/v1/bots/{slug}/webhook", h.HandleWebhookInfo)
	mux.HandleFunc("DELETE /api/v1/bots/{slug}/webhook", h.HandleUnsetWebhook)
	mux.HandleFunc("GET /api/v1/bots/{slug}/me", h.HandleMe)
	return mux
}

func doJSON(t *testing.T, mux http.Handler, tenantID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithTenantID(context.Background(), tenantID))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_BotLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := createTenant(t, pool, "kyiv-coffee")
	tg := &fakeTelegram{}
	h := bots.NewHandler(pool, bots.NewStore(), bots.NewWebhooks(tg, urlFor, nil), nil, nil)
	mux := newBotsMux(h)

	w := doJSON(t, mux, tenantID, http.MethodPost, "/api/v1/bots",
		map[string]any{"name": "Coffee", "token": "1:abc", "terms_of_agreement": false})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, mux, tenantID, http.MethodPost, "/api/v1/bots",
		map[string]any{"name": "Coffee", "token": "1:abc", "terms_of_agreement": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "coffee", created["slug"])
	assert.Equal(t, true, created["is_webhook_set"])
	assert.NotContains(t, created, "token")
	assert.Equal(t, []string{"1:abc https://shop.example.com/telegram/api/coffee/"}, tg.setURLs)

	w = doJSON(t, mux, tenantID, http.MethodPost, "/api/v1/bots",
		map[string]any{"name": "Coffee", "token": "2:def", "terms_of_agreement": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, mux, tenantID, http.MethodGet, "/api/v1/bots/coffee/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "coffee_bot")

	w = doJSON(t, mux, tenantID, http.MethodDelete, "/api/v1/bots/coffee/webhook", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_webhook_set":false`)

	w = doJSON(t, mux, tenantID, http.MethodPut, "/api/v1/bots/coffee",
		map[string]any{"name": "Coffee Bar", "token": "1:abc"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, tg.setURLs, 2)

	w = doJSON(t, mux, tenantID, http.MethodGet, "/api/v1/bots", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Coffee Bar", list[0]["name"])

	w = doJSON(t, mux, tenantID, http.MethodDelete, "/api/v1/bots/coffee", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, mux, tenantID, http.MethodGet, "/api/v1/bots/coffee", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
