package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: redact}))

	log.Info("config loaded", "signer_private_key", "ac0974bec39a", "API_KEY", "s3cret", "port", "8080")

	out := buf.String()
	assert.NotContains(t, out, "ac0974bec39a")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "8080")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLevel("warn", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, parseLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, parseLevel("chatty", slog.LevelDebug))
}
