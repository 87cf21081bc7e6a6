package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "info", Format: "json", Service: "kafeventlake"})

	logger.Info("event ingested", "event_id", "evt-1")
	logger.Debug("suppressed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "event ingested" || entry["event_id"] != "evt-1" || entry["service"] != "kafeventlake" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLoggerTo_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "text"})

	logger.Debug("flattened", "columns", 12)

	out := buf.String()
	if !strings.Contains(out, "msg=flattened") || !strings.Contains(out, "columns=12") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "service=") {
		t.Errorf("service attribute added without a service name: %q", out)
	}
}

func TestNewLogger(t *testing.T) {
	for _, cfg := range []LoggingConfig{
		{Level: "info", Format: "json"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{Level: "warn"},
	} {
		if NewLogger(cfg) == nil {
			t.Fatalf("NewLogger(%+v) returned nil", cfg)
		}
	}
}
