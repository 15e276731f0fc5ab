package logging

import (
	"log/slog"
	"os"
	"strings"
)

// redactedKeys are attribute names whose values never reach the output.
var redactedKeys = map[string]struct{}{
	"private_key":        {},
	"signer_private_key": {},
	"api_key":            {},
	"password":           {},
	"secret_key":         {},
}

func New(env, level string) *slog.Logger {
	var handler slog.Handler

	switch env {
	case "prod", "production":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       parseLevel(level, slog.LevelInfo),
			AddSource:   true,
			ReplaceAttr: redact,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       parseLevel(level, slog.LevelDebug),
			AddSource:   true,
			ReplaceAttr: redact,
		})
	}

	return slog.New(handler)
}

func parseLevel(s string, def slog.Level) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return def
	}
	return l
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
