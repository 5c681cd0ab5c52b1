// Package log configures the process wide slog logger. Diagnostics always go
// to stderr: stdout is reserved for the event stream.
package log

import (
	"context"
	"io"
	"log/slog"
)

type ctxKey string

const loggerCtxKey ctxKey = "logger"

// Debug is set from the command line before InitializeDefaultLogger is called.
var Debug bool

// Level returns the level the default logger is configured with. Everything
// written to stderr is surfaced as an error annotation by the caller so we
// stay quiet unless debugging.
func Level() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func InitializeDefaultLogger(w io.Writer) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level()}))
	slog.SetDefault(logger)
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
