/*
Package wired keeps the "SE held in wired mode" preference in step with the session.

The flag is written before the controller is asked to open or close, so a crash in between
leaves the preference describing what was requested. Restore reads it back at start-up and
reopens the session when a caller held the SE in wired mode before the restart.
*/
package wired

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/se"
)

// PrefKey is the preference holding the wired flag.
const PrefKey = "se_wired"

// Controller wraps a session and records the wired flag around open and disconnect.
type Controller struct {
	session *se.Session
	store   Store
	log     zerolog.Logger

	// mu keeps each flag write together with the open or disconnect it describes.
	mu sync.Mutex
}

func NewController(s *se.Session, store Store, log zerolog.Logger) *Controller {
	return &Controller{
		session: s,
		store:   store,
		log:     log.With().Str("component", "wired").Logger(),
	}
}

// Session returns the wrapped session.
func (c *Controller) Session() *se.Session {
	return c.session
}

// Open records the wired flag and opens the session. The flag is cleared again when the open fails.
func (c *Controller) Open(ctx context.Context) (se.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.persist(ctx, true)
	h, err := c.session.Open(ctx)
	if err != nil && !se.IsAlreadyOpenError(err) {
		c.persist(ctx, false)
	}
	return h, err
}

// Disconnect clears the wired flag and closes the session. A handle that is not
// the live one leaves the flag alone.
func (c *Controller) Disconnect(ctx context.Context, h se.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Owns(h) {
		c.persist(ctx, false)
	}
	return c.session.Disconnect(ctx, h)
}

func (c *Controller) ActivateInterface(ctx context.Context) error {
	return c.session.ActivateInterface(ctx)
}

func (c *Controller) DeactivateInterface(ctx context.Context) error {
	return c.session.DeactivateInterface(ctx)
}

func (c *Controller) Reset(ctx context.Context, h se.Handle) error {
	return c.session.Reset(ctx, h)
}

func (c *Controller) GetAtr(ctx context.Context, h se.Handle) ([]byte, error) {
	return c.session.GetAtr(ctx, h)
}

func (c *Controller) Transceive(ctx context.Context, h se.Handle, apdu []byte) ([]byte, error) {
	return c.session.Transceive(ctx, h, apdu)
}

// Status returns the session view.
func (c *Controller) Status() se.Status {
	return c.session.Status()
}

// Requested reports the stored flag. A missing or unreadable preference counts as false.
func (c *Controller) Requested(ctx context.Context) bool {
	v, ok, err := c.store.Get(ctx, PrefKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to read wired preference")
		return false
	}
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		c.log.Warn().Str("value", v).Msg("ignoring malformed wired preference")
		return false
	}
	return on
}

// Restore reopens the session when the stored flag says a caller held it in wired mode.
// It returns NoHandle and no error when there is nothing to restore.
func (c *Controller) Restore(ctx context.Context) (se.Handle, error) {
	if !c.Requested(ctx) {
		return se.NoHandle, nil
	}
	c.log.Info().Msg("restoring wired mode session")
	return c.Open(ctx)
}

func (c *Controller) persist(ctx context.Context, on bool) {
	if err := c.store.Set(ctx, PrefKey, strconv.FormatBool(on)); err != nil {
		c.log.Warn().Err(err).Bool("wired", on).Msg("failed to persist wired preference")
	}
}
