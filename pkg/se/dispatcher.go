package se

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/metrics"
	"github.com/gregLibert/secure-element/pkg/transport"
)

// Dispatcher turns Commands into transport calls.
//
// Each Execute performs at most one call on the channel. Nothing is retried:
// a caller that wants another attempt issues another command.
type Dispatcher struct {
	ch       transport.Channel
	registry *Registry
	cfg      Config
	log      zerolog.Logger
	// maxCommand is MaxCommandSize, lowered to what the channel can frame.
	maxCommand int
}

// NewDispatcher creates a dispatcher over ch, validating handles against registry.
func NewDispatcher(ch transport.Channel, registry *Registry, cfg Config, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{ch: ch, registry: registry, cfg: cfg, log: log, maxCommand: MaxCommandSize}
	if l, ok := ch.(transport.Limiter); ok && l.MaxTransceive() < d.maxCommand {
		d.maxCommand = l.MaxTransceive()
	}
	return d
}

// Execute checks cmd against sm, runs it on the channel with a bounded timeout,
// classifies any failure and reports the outcome to sm.
func (d *Dispatcher) Execute(ctx context.Context, sm StateMachine, cmd Command) (Response, error) {
	state := sm.State()

	if !sm.Permits(cmd.Op) {
		if cmd.Op == OpOpen {
			return Response{}, reject(newError(ErrCodeAlreadyOpen, cmd.Op, state, nil))
		}
		return Response{}, reject(newError(ErrCodeInvalidState, cmd.Op, state, nil))
	}

	if cmd.boundToHandle() && !d.registry.Validate(cmd.Handle) {
		return Response{}, reject(newError(ErrCodeHandleInvalid, cmd.Op, state, fmt.Errorf("handle %d", cmd.Handle)))
	}

	if cmd.Op == OpTransceive && (len(cmd.Payload) == 0 || len(cmd.Payload) > d.maxCommand) {
		return Response{}, reject(newError(ErrCodeInvalidArgument, cmd.Op, state,
			fmt.Errorf("payload length %d outside 1..%d", len(cmd.Payload), d.maxCommand)))
	}

	callCtx, cancel := d.withTimeout(ctx, cmd.Op)
	defer cancel()

	start := time.Now()
	resp, err := d.call(callCtx, cmd)
	elapsed := time.Since(start)
	metrics.ObserveTransport(cmd.Op.String(), elapsed)
	if err == nil {
		err = d.checkShape(cmd, resp)
	}

	var result *Error
	if err != nil {
		result = classify(cmd.Op, state, err)
	}

	ev := d.log.Debug()
	if result != nil {
		ev = d.log.Warn().Err(result)
	}
	ev.Str("op", cmd.Op.String()).
		Str("state", state.String()).
		Int("tx", len(cmd.Payload)).
		Int("rx", len(resp.Data)).
		Dur("elapsed", elapsed).
		Msg("dispatch")

	if result != nil {
		metrics.RecordDispatch(cmd.Op.String(), result.Kind())
		sm.Advance(ctx, cmd.Op, result)
		return Response{}, result
	}
	metrics.RecordDispatch(cmd.Op.String(), "ok")
	sm.Advance(ctx, cmd.Op, nil)
	return resp, nil
}

// reject counts a command refused before it reached the channel.
func reject(err *Error) error {
	metrics.RecordDispatch(err.Op.String(), err.Kind())
	return err
}

func (d *Dispatcher) withTimeout(ctx context.Context, op Opcode) (context.Context, context.CancelFunc) {
	timeout := d.cfg.CommandTimeout
	if op == OpTransceive {
		timeout = d.cfg.TransceiveTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (d *Dispatcher) call(ctx context.Context, cmd Command) (Response, error) {
	switch cmd.Op {
	case OpOpen:
		raw, err := d.ch.Open(ctx)
		return Response{Raw: raw}, err
	case OpDisconnect:
		return Response{}, d.ch.Disconnect(ctx, cmd.Raw)
	case OpActivate:
		return Response{}, d.ch.Activate(ctx)
	case OpDeactivate:
		return Response{}, d.ch.Deactivate(ctx)
	case OpReset:
		return Response{}, d.ch.Reset(ctx, cmd.Raw)
	case OpGetAtr:
		data, err := d.ch.GetAtr(ctx, cmd.Raw)
		return Response{Data: data}, err
	case OpTransceive:
		data, err := d.ch.Transceive(ctx, cmd.Raw, cmd.Payload)
		return Response{Data: data}, err
	default:
		return Response{}, fmt.Errorf("unknown opcode %d", int(cmd.Op))
	}
}

func (d *Dispatcher) checkShape(cmd Command, resp Response) error {
	s, ok := cmd.expected()
	if !ok {
		return nil
	}
	if n := len(resp.Data); n < s.min || n > s.max {
		return transport.Wrap(transport.ErrMalformedResponse, cmd.Op.String(),
			fmt.Errorf("response length %d outside %d..%d", n, s.min, s.max))
	}
	return nil
}

// classify maps a transport failure onto the session error taxonomy.
func classify(op Opcode, state State, err error) *Error {
	switch {
	case errors.Is(err, transport.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return newError(ErrCodeTimeout, op, state, err)
	case errors.Is(err, transport.ErrMalformedResponse):
		return newError(ErrCodeProtocol, op, state, err)
	default:
		return newError(ErrCodeHardwareFault, op, state, err)
	}
}
