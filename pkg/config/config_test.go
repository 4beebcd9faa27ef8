package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/secure-element/pkg/logging"
	"github.com/gregLibert/secure-element/pkg/se"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "se.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
transport = "devnode"
device = " /dev/p73 "
transceive_timeout = "3s"
reset_settle = "2s"
listen = ":8080"

[log]
level = "debug"
format = "JSON"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	want := Config{
		Transport: TransportDevNode,
		Device:    "/dev/p73",
		Session: se.Config{
			CommandTimeout:    se.DefaultConfig().CommandTimeout,
			TransceiveTimeout: 3 * time.Second,
			ResetSettle:       2 * time.Second,
		},
		Listen:      ":8080",
		Preferences: Default().Preferences,
		Log:         logging.Config{Level: "debug", Format: "json"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad duration", `command_timeout = "soon"`, "command_timeout"},
		{"unknown transport", `transport = "nfc"`, "unknown transport"},
		{"zero timeout", `transceive_timeout = "0s"`, "transceive_timeout"},
		{"unknown key", `colour = "blue"`, "unknown key"},
		{"negative reader", "transport = \"pcsc\"\nreader_index = -1", "reader_index"},
		{"syntax", `transport = `, "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
