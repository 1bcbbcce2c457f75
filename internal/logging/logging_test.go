package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/domain"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &out))
	return out
}

func TestHandlerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(New(domain.LoggingConfig{Level: "debug", Format: "json"}, &buf)))

	logger.Info("scored",
		"network_id", "AA:BB",
		"score", 90.5,
		"count", 3,
		"candidate", true,
		"took", 2*time.Second,
		"error", errors.New("boom"),
	)

	out := decodeLine(t, &buf)
	assert.Equal(t, "info", out["level"])
	assert.Equal(t, "scored", out["message"])
	assert.Equal(t, "radiowatch", out["service"])
	assert.Equal(t, "AA:BB", out["network_id"])
	assert.Equal(t, 90.5, out["score"])
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, true, out["candidate"])
	assert.Equal(t, "boom", out["error"])
}

func TestHandlerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		logAt   slog.Level
		written bool
	}{
		{"debug hidden at info", "info", slog.LevelDebug, false},
		{"info shown at info", "info", slog.LevelInfo, true},
		{"warn hidden at error", "error", slog.LevelWarn, false},
		{"error shown at warn", "warn", slog.LevelError, true},
		{"unknown level means info", "loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewHandler(New(domain.LoggingConfig{Level: tt.level}, &buf)))
			logger.Log(t.Context(), tt.logAt, "msg")
			assert.Equal(t, tt.written, buf.Len() > 0)
		})
	}
}

func TestHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(New(domain.LoggingConfig{Level: "info"}, &buf)))

	logger.With("run_id", "r1").
		WithGroup("batch").
		With("size", 500).
		Info("batch done", slog.Group("counts", "scored", 10))

	out := decodeLine(t, &buf)
	assert.Equal(t, "r1", out["run_id"])
	assert.Equal(t, float64(500), out["batch.size"])
	assert.Equal(t, float64(10), out["batch.counts.scored"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(domain.LoggingConfig{Level: "info", Format: "json"}, &buf)
	slog.Info("hello", "k", "v")

	out := decodeLine(t, &buf)
	assert.Equal(t, "hello", out["message"])
	assert.Equal(t, "v", out["k"])
}
