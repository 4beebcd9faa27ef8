package se

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// FSM event names. Operations that never move the session (transceive, get-ATR)
// are self-loops so that Can() answers legality for every opcode.
const (
	evOpen       = "open"
	evActivate   = "activate"
	evDeactivate = "deactivate"
	evTransceive = "transceive"
	evReset      = "reset"
	evGetAtr     = "get_atr"
	evDisconnect = "disconnect"
	evFault      = "fault"
)

var (
	keyClosed    = StateClosed.key()
	keyOpen      = StateOpen.key()
	keyActivated = StateActivated.key()
	keyFaulted   = StateFaulted.key()
)

var sessionEvents = fsm.Events{
	{Name: evOpen, Src: []string{keyClosed}, Dst: keyOpen},
	{Name: evActivate, Src: []string{keyOpen}, Dst: keyActivated},
	{Name: evDeactivate, Src: []string{keyActivated}, Dst: keyOpen},
	{Name: evTransceive, Src: []string{keyActivated}, Dst: keyActivated},
	{Name: evReset, Src: []string{keyOpen, keyActivated, keyFaulted}, Dst: keyOpen},
	{Name: evGetAtr, Src: []string{keyOpen}, Dst: keyOpen},
	{Name: evGetAtr, Src: []string{keyActivated}, Dst: keyActivated},
	{Name: evGetAtr, Src: []string{keyFaulted}, Dst: keyFaulted},
	{Name: evDisconnect, Src: []string{keyOpen, keyActivated, keyFaulted}, Dst: keyClosed},
	{Name: evFault, Src: []string{keyOpen, keyActivated, keyFaulted}, Dst: keyFaulted},
}

// StateMachine is what the Dispatcher needs from the session lifecycle.
type StateMachine interface {
	// Permits reports whether op is legal in the current state.
	Permits(op Opcode) bool
	// State returns the current state.
	State() State
	// Advance applies the transition for the outcome of op. err is nil on success.
	Advance(ctx context.Context, op Opcode, err error)
}

// Machine is the session lifecycle: Closed -> Open -> Activated, with Faulted
// reachable from any live state and Closed reachable from all of them.
type Machine struct {
	fsm *fsm.FSM
	log zerolog.Logger
}

// NewMachine returns a machine in StateClosed.
func NewMachine(log zerolog.Logger) *Machine {
	m := &Machine{log: log}
	m.fsm = fsm.NewFSM(keyClosed, sessionEvents, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			m.log.Debug().
				Str("event", e.Event).
				Str("from", stateFromKey(e.Src).String()).
				Str("to", stateFromKey(e.Dst).String()).
				Msg("session state changed")
		},
	})
	return m
}

func (m *Machine) Permits(op Opcode) bool {
	return m.fsm.Can(op.event())
}

func (m *Machine) State() State {
	return stateFromKey(m.fsm.Current())
}

// Advance moves the machine according to the outcome of op:
//   - success fires the opcode's own event;
//   - disconnect always closes;
//   - open and get-ATR failures leave the state alone;
//   - any other classified failure faults the session.
func (m *Machine) Advance(ctx context.Context, op Opcode, err error) {
	switch {
	case op == OpDisconnect:
		m.fire(ctx, evDisconnect)
	case err == nil:
		m.fire(ctx, op.event())
	case op == OpOpen, op == OpGetAtr:
	default:
		var seErr *Error
		if errors.As(err, &seErr) && !seErr.Faults() {
			return
		}
		m.fire(ctx, evFault)
	}
}

func (m *Machine) fire(ctx context.Context, event string) {
	// The caller's deadline may already have expired; the transition itself must still happen.
	err := m.fsm.Event(context.WithoutCancel(ctx), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	m.log.Error().Err(err).Str("event", event).Str("state", m.State().String()).Msg("session transition rejected")
}
