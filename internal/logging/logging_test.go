package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"scoringd/internal/config"
)

func TestSetup_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := Setup(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer c.Close()
	l.Info().Msg("dropped")
	l.Warn().Str("k", "v").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if m["message"] != "kept" || m["k"] != "v" || m["service"] != "scoringd" || m["level"] != "warn" {
		t.Fatalf("unexpected line: %v", m)
	}
}

func TestSetup_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := Setup(config.LogConfig{Level: "chatty", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
}

func TestSetup_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := Setup(config.LogConfig{Level: "info", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	l.Info().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestSetup_FileRotation(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "scoringd.log")
	l, c, err := Setup(config.LogConfig{Level: "info", Format: "json", File: path}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	l.Info().Msg("to file")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "to file") || !strings.Contains(buf.String(), "to file") {
		t.Fatalf("expected line in both sinks: file=%q stderr=%q", b, buf.String())
	}
}
