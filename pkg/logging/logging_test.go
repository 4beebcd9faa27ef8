package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "seprobe", Config{Level: "debug", Format: FormatJSON}, env(nil))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	logger.Trace().Msg("hidden")
	logger.Debug().Str("op", "open").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["app"] != "seprobe" || entry["op"] != "open" || entry["message"] != "shown" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewWriter_EnvOverrides(t *testing.T) {
	var buf bytes.Buffer
	vars := map[string]string{EnvLevel: "warn", EnvFormat: "JSON"}
	logger, err := NewWriter(&buf, "sed", DefaultConfig(), env(vars))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, `"message":"kept"`) {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNewWriter_ConsoleNoColor(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "sed", DefaultConfig(), env(map[string]string{EnvNoColor: "1"}))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	logger.Info().Msg("plain")

	if out := buf.String(); strings.Contains(out, "\x1b[") || !strings.Contains(out, "plain") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestNewWriter_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "loud"}},
		{"bad format", Config{Level: "info", Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWriter(&bytes.Buffer{}, "x", tt.cfg, env(nil)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
