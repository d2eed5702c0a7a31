package telemetry

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// botTokenPattern matches Telegram bot tokens, including the "bot<token>"
// form that appears in Bot API URLs inside transport errors.
var botTokenPattern = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

var secretKeys = map[string]bool{
	"token":          true,
	"bot_token":      true,
	"password":       true,
	"webhook_secret": true,
}

// NewLogger builds the process logger. Secrets are masked before they
// reach the writer: whole attributes by key, bot tokens anywhere in string
// and error values.
func NewLogger(level, format string, w ...io.Writer) *slog.Logger {
	var writer io.Writer = os.Stderr
	if len(w) > 0 {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactSecrets,
	}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(writer, opts))
	}
	return slog.New(slog.NewJSONHandler(writer, opts))
}

func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); botTokenPattern.MatchString(s) {
			return slog.String(a.Key, scrub(s))
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok && err != nil {
			if s := err.Error(); botTokenPattern.MatchString(s) {
				return slog.String(a.Key, scrub(s))
			}
		}
	}
	return a
}

func scrub(s string) string {
	return botTokenPattern.ReplaceAllString(s, redacted)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		if strings.EqualFold(level, "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return l
}
