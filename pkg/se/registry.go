package se

import (
	"go.uber.org/atomic"
)

// Handle identifies a live session. It is opaque to callers.
type Handle uint32

// NoHandle is never issued.
const NoHandle Handle = 0

// Registry issues and validates session handles for one transport channel.
// Only one handle is live at a time, and values come from a sequence that
// is never rewound, so a released handle cannot come back to life.
//
// The registry takes no lock: Validate is called on every command and from
// Disconnect while a transceive holds the session.
type Registry struct {
	seq  atomic.Uint32
	live atomic.Uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Issue returns a fresh handle, or ErrAlreadyOpen while another handle is live.
// A refused call still consumes a sequence value.
func (r *Registry) Issue() (Handle, error) {
	h := r.seq.Inc()
	if h == uint32(NoHandle) {
		// uint32 wrapped
		h = r.seq.Inc()
	}
	if !r.live.CompareAndSwap(uint32(NoHandle), h) {
		return NoHandle, newError(ErrCodeAlreadyOpen, OpOpen, 0, nil)
	}
	return Handle(h), nil
}

// Release invalidates h. Releasing an unknown or already released handle does nothing.
func (r *Registry) Release(h Handle) {
	if h != NoHandle {
		r.live.CompareAndSwap(uint32(h), uint32(NoHandle))
	}
}

// Validate reports whether h is the live handle.
func (r *Registry) Validate(h Handle) bool {
	return h != NoHandle && Handle(r.live.Load()) == h
}

// Live returns the live handle, if any.
func (r *Registry) Live() (Handle, bool) {
	h := Handle(r.live.Load())
	return h, h != NoHandle
}
