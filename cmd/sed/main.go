// Command sed is the Secure Element daemon: it owns the transport, restores a wired-mode
// session left open before a restart and serves the session over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/config"
	"github.com/gregLibert/secure-element/pkg/httpapi"
	"github.com/gregLibert/secure-element/pkg/logging"
	"github.com/gregLibert/secure-element/pkg/se"
	"github.com/gregLibert/secure-element/pkg/transport/bind"
	"github.com/gregLibert/secure-element/pkg/wired"
)

const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	listen := flag.String("listen", "", "HTTP listen address override")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "sed: %v\n", err)
			os.Exit(2)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger, err := logging.New("sed", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sed: %v\n", err)
		os.Exit(2)
	}
	logger.Info().Str("path", *configPath).Str("transport", cfg.Transport).Msg("loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("sed stopped")
	}
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	ch, release, err := bind.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer release()

	store, err := wired.OpenSQLite(cfg.Preferences)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	ctrl := wired.NewController(se.NewSession(ch, cfg.Session, logger), store, logger)
	if h, err := ctrl.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to restore wired mode session")
	} else if h != se.NoHandle {
		logger.Info().Uint32("handle", uint32(h)).Msg("wired mode session restored")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewRouter(ctrl, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Msg("sed listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	// The wired flag stays as it is so the next start restores the session;
	// only the controller connection is released here.
	if st := ctrl.Status(); st.Handle != se.NoHandle {
		ctrl.Session().Disconnect(shutdownCtx, st.Handle)
	}
	return nil
}
