// Package bind picks the transport binding named in the configuration.
package bind

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/config"
	"github.com/gregLibert/secure-element/pkg/transport"
	"github.com/gregLibert/secure-element/pkg/transport/devnode"
	"github.com/gregLibert/secure-element/pkg/transport/pcsc"
	"github.com/gregLibert/secure-element/pkg/transport/sim"
)

// Open returns the channel for cfg.Transport and a func that releases it.
func Open(cfg config.Config, log zerolog.Logger) (transport.Channel, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Transport {
	case config.TransportPCSC:
		return pcsc.New(pcsc.Config{Reader: cfg.Reader, ReaderIndex: cfg.ReaderIndex}, log), noop, nil
	case config.TransportDevNode:
		ch, err := devnode.Dial(cfg.Device, log)
		if err != nil {
			return nil, noop, err
		}
		return ch, ch.Close, nil
	case config.TransportSim:
		log.Warn().Msg("using the simulated secure element")
		return sim.New(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown transport %q", cfg.Transport)
}
