package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Output: &buf, ServiceName: "test-svc"})

	logger.WithSession("s-1").WithOperation("ask").Info().
		Int("turns", 4).
		Err(errors.New("boom")).
		Msg("answered")

	line := decodeLine(t, &buf)
	assert.Equal(t, "test-svc", line["service"])
	assert.Equal(t, "s-1", line["session_id"])
	assert.Equal(t, "ask", line["operation"])
	assert.Equal(t, float64(4), line["turns"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "answered", line["message"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestForRequest_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))

	logger.ForRequest(ctx).Info().Msg("hello")
	assert.Equal(t, "req-42", decodeLine(t, &buf)["request_id"])

	assert.Same(t, logger, logger.ForRequest(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, parseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "console", Output: &buf, NoColor: true})

	logger.WithOperation("translate").Info().Int("chunks", 3).Msg("Translation complete")

	out := buf.String()
	assert.Contains(t, out, "Translation complete")
	assert.Contains(t, out, "operation=translate")
	assert.Contains(t, out, "chunks=3")
}
