package telemetry_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/platform/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawq"

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	telemetry.NewLogger("info", "json", &buf).Info("order submitted", "number", 7)

	entry := decode(t, &buf)
	assert.Equal(t, "order submitted", entry["msg"])
	assert.Equal(t, float64(7), entry["number"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
		warnSeen  bool
	}{
		{"debug", true, true, true},
		{"INFO", false, true, true},
		{"warning", false, false, true},
		{"error", false, false, false},
		{"nonsense", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := telemetry.NewLogger(tt.level, "text", &buf)

			logger.Debug("d-line")
			logger.Info("i-line")
			logger.Warn("w-line")

			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte("d-line")))
			assert.Equal(t, tt.infoSeen, bytes.Contains(buf.Bytes(), []byte("i-line")))
			assert.Equal(t, tt.warnSeen, bytes.Contains(buf.Bytes(), []byte("w-line")))
		})
	}
}

func TestNewLogger_RedactsSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("debug", "json", &buf)

	logger.Debug("bot registered", "token", botToken, "password", "hunter22", "slug", "my-shop")

	entry := decode(t, &buf)
	assert.Equal(t, "[REDACTED]", entry["token"])
	assert.Equal(t, "[REDACTED]", entry["password"])
	assert.Equal(t, "my-shop", entry["slug"])
}

func TestNewLogger_ScrubsTokensInsideValues(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("info", "json", &buf)

	transportErr := errors.New(`Post "https://api.telegram.org/bot` + botToken + `/sendMessage": dial tcp: i/o timeout`)
	logger.Error("telegram call failed", "error", transportErr, "url", "https://api.telegram.org/bot"+botToken+"/getMe")

	assert.NotContains(t, buf.String(), botToken)
	entry := decode(t, &buf)
	assert.Contains(t, entry["error"], "https://api.telegram.org/bot[REDACTED]/sendMessage")
	assert.Equal(t, "https://api.telegram.org/bot[REDACTED]/getMe", entry["url"])
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	telemetry.NewLogger("info", "text", &buf).Info("hello", "k", "v")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}
