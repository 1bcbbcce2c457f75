// Package logging routes log/slog through zerolog.
//
// The rest of radiowatch logs with slog key-value calls. Setup installs a
// slog.Handler backed by a zerolog logger so output format and level are
// controlled in one place:
//
//	logger := logging.Setup(cfg.Logging, os.Stderr)
//	slog.Info("server starting", "port", 8080)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// New builds a zerolog logger for the given settings. A nil writer means
// stderr.
func New(cfg domain.LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "radiowatch").
		Logger()
}

// Setup creates a slog logger backed by zerolog and installs it as the
// slog default.
func Setup(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := slog.New(NewHandler(New(cfg, w)))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to zerolog. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
