package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by New.
const (
	EnvDebug  = "PLUGWATCH_DEBUG"
	EnvQuiet  = "PLUGWATCH_QUIET"
	EnvFormat = "PLUGWATCH_LOG_FORMAT"
)

var defaultLogger *slog.Logger

func init() {
	defaultLogger = New(os.Stderr, "")
	slog.SetDefault(defaultLogger)
}

// Get returns the default logger
func Get() *slog.Logger {
	return defaultLogger
}

// New builds a logger writing to w. level is one of debug, info, warn or
// error; empty means info. PLUGWATCH_QUIET lowers the default to warn and
// PLUGWATCH_DEBUG forces debug over everything else.
func New(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceAttr,
	}

	if level == "" && os.Getenv(EnvQuiet) != "" {
		opts.Level = slog.LevelWarn
	}
	if os.Getenv(EnvDebug) != "" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv(EnvFormat), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup replaces the default logger, for commands that take a log level flag.
func Setup(level string) *slog.Logger {
	defaultLogger = New(os.Stderr, level)
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case slog.LevelDebug:
		a.Value = slog.StringValue("DBG")
	case slog.LevelInfo:
		a.Value = slog.StringValue("INF")
	case slog.LevelWarn:
		a.Value = slog.StringValue("WRN")
	case slog.LevelError:
		a.Value = slog.StringValue("ERR")
	}
	return a
}
