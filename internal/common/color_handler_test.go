package common

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewColorHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := NewColorHandler(&buf, nil)

	if handler.writer != &buf {
		t.Error("Writer not set correctly")
	}
	if handler.masker == nil {
		t.Error("Masker not initialized")
	}
	if handler.useColor {
		t.Error("colors must be off for non-terminal writers")
	}
}

func TestColorHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name    string
		level   slog.Level
		opts    *slog.HandlerOptions
		enabled bool
	}{
		{name: "default level (info)", level: slog.LevelInfo, enabled: true},
		{name: "debug level with info handler", level: slog.LevelDebug, enabled: false},
		{name: "error level", level: slog.LevelError, enabled: true},
		{name: "debug handler with debug level", level: slog.LevelDebug, opts: &slog.HandlerOptions{Level: slog.LevelDebug}, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewColorHandler(&buf, tt.opts)
			if got := h.Enabled(context.Background(), tt.level); got != tt.enabled {
				t.Fatalf("Enabled() = %v, want %v", got, tt.enabled)
			}
		})
	}
}

func TestColorHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	logger := slog.New(h).WithGroup("cgi").With("script", "/index.php")

	logger.Info("response parsed", "status", 404, "elapsed", 15*time.Millisecond, "HTTP_COOKIE", "PHPSESSID=secret")

	out := buf.String()
	for _, want := range []string{"[INFO ]", "[cgi]", "response parsed", `script="/index.php"`, "status=404", "elapsed=15ms", "HTTP_COOKIE=\"***MASKED***\""} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "PHPSESSID=secret") {
		t.Fatalf("cookie leaked: %s", out)
	}
}

func TestColorHandler_StatusColors(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	h.SetColorEnabled(true)

	cases := map[int64]string{200: Green, 302: Cyan, 404: Yellow, 500: Red}
	for code, color := range cases {
		got := h.formatValue(slog.Int64("status", code))
		if !strings.HasPrefix(got, color) {
			t.Fatalf("status %d colored %q, want prefix %q", code, got, color)
		}
	}
}
