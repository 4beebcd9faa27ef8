// Command seprobe opens a session with the embedded Secure Element, reads its answer to reset,
// selects the Issuer Security Domain and dumps the Card Production Life Cycle data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/config"
	"github.com/gregLibert/secure-element/pkg/logging"
	"github.com/gregLibert/secure-element/pkg/se"
	"github.com/gregLibert/secure-element/pkg/transport/bind"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to TOML config file")
		transportF = flag.String("transport", "", "transport binding override: pcsc, devnode or sim")
		readerF    = flag.String("reader", "", "PC/SC reader name substring")
		deviceF    = flag.String("device", "", "character device for the devnode transport")
		format     = flag.String("format", "text", "report format: text or yaml")
		channel    = flag.Bool("channel", false, "also select the ISD on a logical channel")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seprobe: %v\n", err)
		os.Exit(2)
	}
	if *transportF != "" {
		cfg.Transport = strings.ToLower(*transportF)
	}
	if *readerF != "" {
		cfg.Reader = *readerF
	}
	if *deviceF != "" {
		cfg.Device = *deviceF
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "seprobe: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New("seprobe", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seprobe: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, logger, *format, *channel); err != nil {
		logger.Error().Err(err).Msg("probe failed")
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(cfg config.Config, logger zerolog.Logger, format string, logicalChannel bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, release, err := bind.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release transport")
		}
	}()

	session := se.NewSession(ch, cfg.Session, logger)
	report, err := probe(ctx, session, logicalChannel)
	if report != nil {
		if rerr := render(os.Stdout, report, format); rerr != nil {
			return rerr
		}
	}
	return err
}
