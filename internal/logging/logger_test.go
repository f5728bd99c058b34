package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
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
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFanoutToConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "aime.log")

	l, err := New(Options{Level: "info", Format: "text", File: path, Writer: &console})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("task finished", "task_id", "task-1")
	l.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !strings.Contains(console.String(), "task finished") || !strings.Contains(console.String(), "task_id=task-1") {
		t.Errorf("console = %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v (%q)", err, data)
	}
	if rec["msg"] != "task finished" || rec["task_id"] != "task-1" {
		t.Errorf("file record = %v", rec)
	}
}

func TestQuietSkipsConsole(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Options{Quiet: true, Writer: &console})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Warn("nobody hears this")
	if console.Len() != 0 {
		t.Errorf("expected no console output, got %q", console.String())
	}
}

func TestJSONConsoleFormat(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Options{Format: "json", Writer: &console})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("hello")
	if !strings.HasPrefix(console.String(), "{") {
		t.Errorf("expected JSON output, got %q", console.String())
	}
}
