package logger

import (
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

// Init initializes the global slog logger. Level and format come from the
// config; the ORIGINCHATS_LOG_LEVEL env var wins when set so tests and
// deployments can override without editing the config file.
func Init(level, format string) {
	if env := strings.TrimSpace(os.Getenv("ORIGINCHATS_LOG_LEVEL")); env != "" {
		level = env
	}
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(format, "json") {
		Log = slog.New(slog.NewJSONHandler(os.Stdout, opts))
		return
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func ensure() *slog.Logger {
	if Log == nil {
		Init("info", "text")
	}
	return Log
}

// Debug logs at debug level with alternating key/value args.
func Debug(msg string, args ...any) { ensure().Debug(msg, args...) }

// Info logs at info level with alternating key/value args.
func Info(msg string, args ...any) { ensure().Info(msg, args...) }

// Warn logs at warn level with alternating key/value args.
func Warn(msg string, args ...any) { ensure().Warn(msg, args...) }

// Error logs at error level with alternating key/value args.
func Error(msg string, args ...any) { ensure().Error(msg, args...) }
