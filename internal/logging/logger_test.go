package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRunID(t *testing.T) {
	if got := RunID(context.Background()); got != "" {
		t.Errorf("RunID(background) = %q, want empty", got)
	}

	ctx := WithRunID(context.Background())
	id := RunID(ctx)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("RunID = %q, not a UUID: %v", id, err)
	}

	if other := RunID(WithRunID(context.Background())); other == id {
		t.Error("expected distinct run IDs per context")
	}
}

func TestFromContext_AddsRunID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(&buf, "info", "json")

	ctx := WithRunID(context.Background())
	WithFields(ctx, "dir", "/data").Info("loaded")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"`+RunID(ctx)+`"`) {
		t.Errorf("log line missing run_id: %s", out)
	}
	if !strings.Contains(out, `"dir":"/data"`) {
		t.Errorf("log line missing field: %s", out)
	}
}

func TestSetup_Level(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(&buf, "warn", "text")

	slog.Info("hidden")
	slog.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %s", out)
	}
}
