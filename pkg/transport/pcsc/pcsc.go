/*
Package pcsc binds transport.Channel to a PC/SC reader through github.com/ebfe/scard.

This is the bench setup: an embedded SE exposed by the controller as a reader, or a plain
contact card standing in for one. The mapping is:

  - Open: establish a context and connect to the reader in exclusive mode.
  - Activate / Deactivate: begin and end a PC/SC transaction.
  - Reset: reconnect with a card reset.
  - GetAtr: the ATR from the card status.
  - Transceive: a single Transmit.
  - Disconnect: leave the card and release the context.

PC/SC calls cannot be interrupted, so a call that outlives its context is abandoned and reported as
a timeout. The reader library finishes it in the background and the channel stays busy until it
does: later calls wait for it within their own context, and a connection dialed too late is closed
again.
*/
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/transport"
)

// Config selects the reader. A non-empty Reader matches by substring and wins over ReaderIndex.
type Config struct {
	Reader      string
	ReaderIndex int
}

// card is the part of *scard.Card the channel drives.
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Status() (*scard.CardStatus, error)
	Reconnect(mode scard.ShareMode, proto scard.Protocol, disp scard.Disposition) error
	BeginTransaction() error
	EndTransaction(disp scard.Disposition) error
	Disconnect(disp scard.Disposition) error
}

// connection is a connected card plus whatever must be released with it.
type connection struct {
	card    card
	reader  string
	release func() error
}

type dialer func(cfg Config) (*connection, error)

// Channel is a transport.Channel over one PC/SC reader.
type Channel struct {
	cfg  Config
	log  zerolog.Logger
	dial dialer

	mu   sync.Mutex
	conn *connection
	raw  transport.RawHandle
	next transport.RawHandle
	inTx bool
	// busy is closed once the last abandoned call and its cleanup have returned.
	busy chan struct{}
}

// New returns a channel that connects on Open.
func New(cfg Config, log zerolog.Logger) *Channel {
	return &Channel{
		cfg:  cfg,
		log:  log.With().Str("component", "pcsc").Logger(),
		dial: dialReader,
		raw:  transport.InvalidRawHandle,
		next: 1,
	}
}

func dialReader(cfg Config) (*connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establishing context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("listing readers: %w", err)
	}
	reader, err := pickReader(readers, cfg)
	if err != nil {
		_ = ctx.Release()
		return nil, err
	}

	c, err := ctx.Connect(reader, scard.ShareExclusive, scard.ProtocolAny)
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("connecting to %q: %w", reader, err)
	}
	return &connection{card: c, reader: reader, release: ctx.Release}, nil
}

func pickReader(readers []string, cfg Config) (string, error) {
	if len(readers) == 0 {
		return "", scard.ErrNoReadersAvailable
	}
	if cfg.Reader != "" {
		for _, r := range readers {
			if strings.Contains(r, cfg.Reader) {
				return r, nil
			}
		}
		return "", fmt.Errorf("no reader matches %q among %q", cfg.Reader, readers)
	}
	if cfg.ReaderIndex < 0 || cfg.ReaderIndex >= len(readers) {
		return "", fmt.Errorf("reader index %d out of range (%d readers)", cfg.ReaderIndex, len(readers))
	}
	return readers[cfg.ReaderIndex], nil
}

func (c *Channel) Open(ctx context.Context) (transport.RawHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return transport.InvalidRawHandle, transport.Wrap(transport.ErrHardwareFault, "open", errors.New("reader already connected"))
	}

	var conn *connection
	err := c.run(ctx, "open", func() error {
		var err error
		conn, err = c.dial(c.cfg)
		return err
	}, func(err error) {
		if err != nil {
			return
		}
		if cerr := closeConn(conn); cerr != nil {
			c.log.Warn().Err(cerr).Str("reader", conn.reader).Msg("closing late connection")
		}
	})
	if err != nil {
		return transport.InvalidRawHandle, err
	}

	c.conn = conn
	c.raw = c.next
	c.next++
	c.log.Info().Str("reader", conn.reader).Int32("raw", int32(c.raw)).Msg("connected")
	return c.raw, nil
}

func (c *Channel) Disconnect(ctx context.Context, h transport.RawHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connected("disconnect", h)
	if err != nil {
		return err
	}
	// The handle is gone whatever the reader answers.
	c.conn, c.raw, c.inTx = nil, transport.InvalidRawHandle, false

	if err := c.settle(ctx, "disconnect"); err != nil {
		busy, settled := c.busy, make(chan struct{})
		c.busy = settled
		go func() {
			<-busy
			_ = closeConn(conn)
			close(settled)
		}()
		return err
	}
	return c.run(ctx, "disconnect", func() error { return closeConn(conn) }, nil)
}

func closeConn(conn *connection) error {
	err := conn.card.Disconnect(scard.LeaveCard)
	if conn.release != nil {
		if relErr := conn.release(); relErr != nil && err == nil {
			err = relErr
		}
	}
	return err
}

func (c *Channel) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connected("activate", c.raw)
	if err != nil {
		return err
	}
	if c.inTx {
		return nil
	}
	if err := c.run(ctx, "activate", conn.card.BeginTransaction, nil); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

func (c *Channel) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connected("deactivate", c.raw)
	if err != nil {
		return err
	}
	if !c.inTx {
		return nil
	}
	c.inTx = false
	return c.run(ctx, "deactivate", func() error {
		return conn.card.EndTransaction(scard.LeaveCard)
	}, nil)
}

func (c *Channel) Reset(ctx context.Context, h transport.RawHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connected("reset", h)
	if err != nil {
		return err
	}
	// A reset ends any open transaction.
	c.inTx = false
	return c.run(ctx, "reset", func() error {
		return conn.card.Reconnect(scard.ShareExclusive, scard.ProtocolAny, scard.ResetCard)
	}, nil)
}

func (c *Channel) GetAtr(ctx context.Context, h transport.RawHandle) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connected("get_atr", h)
	if err != nil {
		return nil, err
	}
	var atr []byte
	err = c.run(ctx, "get_atr", func() error {
		st, err := conn.card.Status()
		if err != nil {
			return err
		}
		atr = st.Atr
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return atr, nil
}

func (c *Channel) Transceive(ctx context.Context, h transport.RawHandle, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connected("transceive", h)
	if err != nil {
		return nil, err
	}
	var resp []byte
	err = c.run(ctx, "transceive", func() error {
		var err error
		resp, err = conn.card.Transmit(data)
		return err
	}, nil)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Channel) connected(op string, h transport.RawHandle) (*connection, error) {
	if c.conn == nil || h != c.raw {
		return nil, transport.Wrap(transport.ErrDisconnected, op, fmt.Errorf("raw handle %d not connected", h))
	}
	return c.conn, nil
}

// run executes fn and waits for it or for ctx, whichever ends first. When ctx wins, late, if set,
// receives fn's result, and the channel stays busy until both have returned. Callers hold c.mu.
func (c *Channel) run(ctx context.Context, op string, fn func() error, late func(error)) error {
	if err := transport.FromContext(ctx, op); err != nil {
		return err
	}
	if err := c.settle(ctx, op); err != nil {
		return err
	}

	done := make(chan struct{})
	var err error
	go func() {
		err = fn()
		close(done)
	}()

	select {
	case <-done:
		return mapError(op, err)
	case <-ctx.Done():
		settled := make(chan struct{})
		c.busy = settled
		c.log.Warn().Str("op", op).Msg("abandoning reader call")
		go func() {
			<-done
			if late != nil {
				late(err)
			}
			close(settled)
		}()
		return transport.FromContext(ctx, op)
	}
}

// settle waits for an abandoned call to return. Callers hold c.mu.
func (c *Channel) settle(ctx context.Context, op string) error {
	if c.busy == nil {
		return nil
	}
	select {
	case <-c.busy:
		c.busy = nil
		return nil
	case <-ctx.Done():
		return transport.Wrap(transport.ErrHardwareFault, op, errors.New("reader still busy with an abandoned call"))
	}
}

// mapError translates a PC/SC status into a transport sentinel.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var code scard.Error
	if errors.As(err, &code) {
		switch code {
		case scard.ErrTimeout:
			return transport.Wrap(transport.ErrTimeout, op, err)
		case scard.ErrRemovedCard, scard.ErrResetCard, scard.ErrNoSmartcard,
			scard.ErrUnpoweredCard, scard.ErrReaderUnavailable, scard.ErrNoReadersAvailable:
			return transport.Wrap(transport.ErrDisconnected, op, err)
		case scard.ErrInsufficientBuffer, scard.ErrInvalidAtr:
			return transport.Wrap(transport.ErrMalformedResponse, op, err)
		}
	}
	return transport.Wrap(transport.ErrHardwareFault, op, err)
}
