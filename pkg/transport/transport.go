/*
Package transport defines the primitive channel to the NFC controller that hosts the Secure Element.

A Channel owns no session semantics. Every call is synchronous, performs one round trip with the
controller and must honour the deadline carried by its context. Failures are reported with one of the
sentinel errors below (wrapped, so callers use errors.Is):

  - ErrTimeout: the controller did not answer in time.
  - ErrDisconnected: the SE or the controller link went away (card removed, unexpected reset).
  - ErrMalformedResponse: a frame came back short, oversize or otherwise undecodable.
  - ErrHardwareFault: the controller reported a failure.

Bindings live in the sub-packages pcsc, devnode and sim.
*/
package transport

import (
	"context"
	"errors"
	"fmt"
)

// RawHandle is the identifier the controller hands out when a connection to the SE is opened.
type RawHandle int32

// InvalidRawHandle mirrors the controller's "no handle" value.
const InvalidRawHandle RawHandle = -3

var (
	ErrTimeout           = errors.New("transport: timeout")
	ErrDisconnected      = errors.New("transport: disconnected")
	ErrMalformedResponse = errors.New("transport: malformed response")
	ErrHardwareFault     = errors.New("transport: hardware fault")
)

// Channel abstracts the controller primitives used by a Secure Element session.
type Channel interface {
	Open(ctx context.Context) (RawHandle, error)
	Disconnect(ctx context.Context, h RawHandle) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Reset(ctx context.Context, h RawHandle) error
	GetAtr(ctx context.Context, h RawHandle) ([]byte, error)
	Transceive(ctx context.Context, h RawHandle, data []byte) ([]byte, error)
}

// Limiter is implemented by channels whose framing cannot carry every command a session accepts.
type Limiter interface {
	// MaxTransceive is the largest command, in bytes, Transceive can send.
	MaxTransceive() int
}

// Wrap attaches a transport sentinel to a lower level cause, keeping both visible to errors.Is.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// FromContext converts a context error into ErrTimeout. It returns nil if ctx is still live.
func FromContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(ErrTimeout, op, err)
	}
	return nil
}
