// Package logging builds the zerolog logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables that override the configured values.
const (
	EnvLevel   = "SE_LOG_LEVEL"
	EnvFormat  = "SE_LOG_FORMAT"
	EnvNoColor = "SE_LOG_NOCOLOR"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level and output format.
type Config struct {
	Level   string
	Format  string
	NoColor bool
}

// DefaultConfig logs at info level to a colored console.
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatConsole}
}

// New builds a logger writing to stderr, tagged with app, and installs it as the global logger.
func New(app string, cfg Config) (zerolog.Logger, error) {
	return NewWriter(os.Stderr, app, cfg, os.Getenv)
}

// NewWriter is New with an explicit output and environment lookup.
func NewWriter(out io.Writer, app string, cfg Config, getenv func(string) string) (zerolog.Logger, error) {
	cfg = withEnv(cfg, getenv)

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	switch cfg.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger, nil
}

func withEnv(cfg Config, getenv func(string) string) Config {
	if v := strings.TrimSpace(getenv(EnvLevel)); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvFormat)); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	switch strings.ToLower(strings.TrimSpace(getenv(EnvNoColor))) {
	case "1", "true", "yes":
		cfg.NoColor = true
	case "0", "false", "no":
		cfg.NoColor = false
	}
	return cfg
}
