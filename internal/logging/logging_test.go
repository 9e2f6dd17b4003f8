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
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "info")

	logger = WithProjectID(WithRequestID(WithComponent(logger, "api"), "req-1"), "p1")
	logger.Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for key, want := range map[string]string{"component": "api", "request_id": "req-1", "project_id": "p1", "msg": "hello"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")

	logger, closer, err := NewFileLogger(path, "warn")
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Errorf("log file = %q", data)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := SanitizePath(filepath.Join(home, "videos")); !strings.HasPrefix(got, "~") {
		t.Errorf("SanitizePath() = %q", got)
	}
	if got := SanitizePath("/srv/data"); got != "/srv/data" && !strings.HasPrefix(home, "/srv/data") {
		t.Errorf("SanitizePath() changed unrelated path to %q", got)
	}
}
