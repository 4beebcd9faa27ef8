// Package config loads the TOML configuration shared by seprobe and sed.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gregLibert/secure-element/pkg/logging"
	"github.com/gregLibert/secure-element/pkg/se"
)

// Transport bindings.
const (
	TransportPCSC    = "pcsc"
	TransportDevNode = "devnode"
	TransportSim     = "sim"
)

// Config is the resolved configuration.
type Config struct {
	Transport string
	// Reader is a substring of the PC/SC reader name; empty picks ReaderIndex.
	Reader      string
	ReaderIndex int
	Device      string

	Session se.Config

	// Listen is the HTTP address of the daemon.
	Listen string
	// Preferences is the SQLite file holding the wired-mode flag.
	Preferences string

	Log logging.Config
}

type fileConfig struct {
	Transport         string  `toml:"transport"`
	Reader            string  `toml:"reader"`
	ReaderIndex       int     `toml:"reader_index"`
	Device            string  `toml:"device"`
	CommandTimeout    string  `toml:"command_timeout"`
	TransceiveTimeout string  `toml:"transceive_timeout"`
	ResetSettle       string  `toml:"reset_settle"`
	Listen            string  `toml:"listen"`
	Preferences       string  `toml:"preferences"`
	Log               fileLog `toml:"log"`
}

type fileLog struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	NoColor bool   `toml:"no_color"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transport:   TransportSim,
		Device:      "/dev/p73",
		Session:     se.DefaultConfig(),
		Listen:      "127.0.0.1:7320",
		Preferences: "se-preferences.db",
		Log:         logging.DefaultConfig(),
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("reader") {
		cfg.Reader = strings.TrimSpace(raw.Reader)
	}
	if meta.IsDefined("reader_index") {
		cfg.ReaderIndex = raw.ReaderIndex
	}
	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"command_timeout", raw.CommandTimeout, &cfg.Session.CommandTimeout},
		{"transceive_timeout", raw.TransceiveTimeout, &cfg.Session.TransceiveTimeout},
		{"reset_settle", raw.ResetSettle, &cfg.Session.ResetSettle},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("preferences") {
		cfg.Preferences = strings.TrimSpace(raw.Preferences)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportPCSC:
		if c.ReaderIndex < 0 {
			return fmt.Errorf("reader_index must not be negative, got %d", c.ReaderIndex)
		}
	case TransportDevNode:
		if c.Device == "" {
			return errors.New("device is required for the devnode transport")
		}
	case TransportSim:
	default:
		return fmt.Errorf("unknown transport %q (want pcsc, devnode or sim)", c.Transport)
	}

	if c.Session.CommandTimeout <= 0 {
		return errors.New("command_timeout must be positive")
	}
	if c.Session.TransceiveTimeout <= 0 {
		return errors.New("transceive_timeout must be positive")
	}
	if c.Session.ResetSettle < 0 {
		return errors.New("reset_settle must not be negative")
	}
	return nil
}
