package se

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/transport"
)

// Session is the single logical connection to the Secure Element behind one transport channel.
//
// Every operation holds the session lock for its full duration, transport round trip included,
// so concurrent callers are served one at a time in the order they acquire the lock.
type Session struct {
	mu       sync.Mutex
	machine  *Machine
	registry *Registry
	dispatch *Dispatcher
	cfg      Config
	log      zerolog.Logger

	handle Handle
	raw    transport.RawHandle
	id     uuid.UUID
	wired  bool

	inflightMu sync.Mutex
	inflight   context.CancelFunc
}

// NewSession creates a closed session over ch.
func NewSession(ch transport.Channel, cfg Config, log zerolog.Logger) *Session {
	log = log.With().Str("component", "se").Logger()
	registry := NewRegistry()
	return &Session{
		machine:  NewMachine(log),
		registry: registry,
		dispatch: NewDispatcher(ch, registry, cfg, log),
		cfg:      cfg,
		log:      log,
		raw:      transport.InvalidRawHandle,
	}
}

// Status is a point-in-time view of the session.
type Status struct {
	State              State
	Handle             Handle
	ID                 uuid.UUID
	WiredModeRequested bool
}

// State returns the current lifecycle state without waiting for an operation in progress.
func (s *Session) State() State {
	return s.machine.State()
}

// Status waits for any operation in progress and returns the session view.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		State:              s.machine.State(),
		Handle:             s.handle,
		ID:                 s.id,
		WiredModeRequested: s.wired,
	}
}

// Owns reports whether h is the live handle. It does not wait for an operation in progress.
func (s *Session) Owns(h Handle) bool {
	return s.registry.Validate(h)
}

// ID returns the identifier of the current session, or uuid.Nil when closed.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

// WiredModeRequested reports whether a caller currently holds the SE in wired mode.
func (s *Session) WiredModeRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wired
}

// Open connects to the Secure Element and returns the handle for the new session.
func (s *Session) Open(ctx context.Context) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.execute(ctx, Command{Op: OpOpen})
	if err != nil {
		return NoHandle, err
	}

	h, err := s.registry.Issue()
	if err != nil {
		// The registry and the machine disagree; give the connection back.
		s.log.Error().Err(err).Msg("handle registry refused a handle after open")
		_, _ = s.execute(ctx, Command{Op: OpDisconnect, Raw: resp.Raw})
		return NoHandle, err
	}

	s.handle = h
	s.raw = resp.Raw
	s.id = uuid.New()
	s.wired = true
	s.log.Info().
		Str("session", s.id.String()).
		Uint32("handle", uint32(h)).
		Int32("raw", int32(resp.Raw)).
		Msg("secure element session opened")
	return h, nil
}

// Disconnect closes the session identified by h.
//
// The session ends up Closed and h invalid whatever the controller answers; the
// return value only reports whether the controller acknowledged. A handle that is
// not the live one is ignored and reported as false.
func (s *Session) Disconnect(ctx context.Context, h Handle) bool {
	// Abort a transceive that is blocking the lock, but only on behalf of the handle owner.
	if s.registry.Validate(h) {
		s.cancelInflight()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h == NoHandle || h != s.handle || !s.registry.Validate(h) {
		s.log.Warn().Uint32("handle", uint32(h)).Msg("disconnect ignored: handle is not live")
		return false
	}

	_, err := s.execute(ctx, Command{Op: OpDisconnect, Handle: h, Raw: s.raw})

	log := s.log.With().Str("session", s.id.String()).Uint32("handle", uint32(h)).Logger()
	s.registry.Release(h)
	s.handle = NoHandle
	s.raw = transport.InvalidRawHandle
	s.id = uuid.Nil
	s.wired = false

	if err != nil {
		log.Warn().Err(err).Msg("secure element session closed without controller acknowledgement")
		return false
	}
	log.Info().Msg("secure element session closed")
	return true
}

// ActivateInterface brings the SE interface up for APDU exchange.
func (s *Session) ActivateInterface(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.execute(ctx, Command{Op: OpActivate, Handle: s.handle})
	return err
}

// DeactivateInterface takes the SE interface down, keeping the session open.
func (s *Session) DeactivateInterface(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.execute(ctx, Command{Op: OpDeactivate, Handle: s.handle})
	return err
}

// Reset reinitialises the SE interface and returns the session to Open.
func (s *Session) Reset(ctx context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.execute(ctx, Command{Op: OpReset, Handle: h, Raw: s.raw}); err != nil {
		return err
	}

	if s.cfg.ResetSettle > 0 {
		t := time.NewTimer(s.cfg.ResetSettle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}

// GetAtr returns the SE answer-to-reset. It is allowed while Faulted.
func (s *Session) GetAtr(ctx context.Context, h Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.execute(ctx, Command{Op: OpGetAtr, Handle: h, Raw: s.raw})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Transceive sends one APDU and returns the raw response, status word included.
// A timeout or malformed response faults the session; it is never retried here.
func (s *Session) Transceive(ctx context.Context, h Handle, apdu []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.execute(ctx, Command{Op: OpTransceive, Handle: h, Raw: s.raw, Payload: apdu})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// execute runs cmd with a cancel func Disconnect can reach. Callers hold s.mu.
func (s *Session) execute(ctx context.Context, cmd Command) (Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.inflightMu.Lock()
	s.inflight = cancel
	s.inflightMu.Unlock()

	defer func() {
		s.inflightMu.Lock()
		s.inflight = nil
		s.inflightMu.Unlock()
		cancel()
	}()

	return s.dispatch.Execute(ctx, s.machine, cmd)
}

func (s *Session) cancelInflight() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	if s.inflight != nil {
		s.inflight()
	}
}
