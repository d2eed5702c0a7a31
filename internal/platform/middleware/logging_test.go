package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
	"github.com/shopfront-hq/shopfront/internal/platform/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		status    int
		body      string
		wantLevel string
		silent    bool
	}{
		{name: "ok", method: http.MethodGet, path: "/api/v1/bots", status: http.StatusOK, body: `[]`, wantLevel: "INFO"},
		{name: "client error", method: http.MethodPost, path: "/api/v1/orders/7/accept", status: http.StatusConflict, wantLevel: "WARN"},
		{name: "server error", method: http.MethodPost, path: "/telegram/api/shop/", status: http.StatusBadGateway, wantLevel: "ERROR"},
		{name: "probe", method: http.MethodGet, path: "/healthz", status: http.StatusOK, silent: true},
		{name: "failing probe", method: http.MethodGet, path: "/readyz", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := telemetry.NewLogger("info", "json", &buf)
			handler := middleware.RequestID(middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Request-ID", "req-7")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.silent {
				assert.Zero(t, buf.Len())
				return
			}
			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "http request", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.method, entry["method"])
			assert.Equal(t, tt.path, entry["path"])
			assert.EqualValues(t, tt.status, entry["status"])
			assert.EqualValues(t, len(tt.body), entry["bytes"])
			assert.Equal(t, "req-7", entry["request_id"])
			assert.Contains(t, entry, "duration_ms")
		})
	}
}
