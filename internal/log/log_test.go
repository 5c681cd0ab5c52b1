package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With(slog.Int("page", 3))
	ctx := ContextWithLogger(context.Background(), logger)

	LoggerFromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "page=3") {
		t.Fatalf("expected logger from context to be used, got %q", buf.String())
	}
}

func TestLoggerFromContextDefault(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger for empty context")
	}
}

func TestLevel(t *testing.T) {
	defer func() { Debug = false }()

	Debug = false
	if Level() != slog.LevelWarn {
		t.Fatalf("expected warn level, got %v", Level())
	}
	Debug = true
	if Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", Level())
	}
}

func TestInitializeDefaultLoggerFiltersInfo(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	Debug = false

	var buf bytes.Buffer
	InitializeDefaultLogger(&buf)
	slog.Info("not shown")
	slog.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "not shown") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output %q", out)
	}
}
