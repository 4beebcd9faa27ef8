package se

import "github.com/gregLibert/secure-element/pkg/transport"

// Buffer limits of the controller's native layer.
const (
	// MaxResponseSize is the largest R-APDU the controller returns (34 KiB).
	MaxResponseSize = 0x8800
	// MaxAtrSize bounds the answer-to-reset buffer.
	MaxAtrSize = 1024
	// MaxCommandSize is the largest extended-length C-APDU: header, extended Lc, 65535 data bytes, extended Le.
	MaxCommandSize = 4 + 3 + 65535 + 2
)

// Command is a one-shot request for the transport channel.
type Command struct {
	Op Opcode
	// Handle is the caller's session handle, validated for handle-bound opcodes.
	Handle Handle
	// Raw is the controller handle the session obtained at open.
	Raw     transport.RawHandle
	Payload []byte
}

// Response is the outcome of a successful Command.
type Response struct {
	Data []byte
	// Raw is only set by OpOpen.
	Raw transport.RawHandle
}

type shape struct {
	min, max int
}

// expected returns the acceptable response payload length for op.
// Opcodes without a payload report ok=false.
func (c Command) expected() (s shape, ok bool) {
	switch c.Op {
	case OpTransceive:
		// at least SW1 SW2
		return shape{min: 2, max: MaxResponseSize}, true
	case OpGetAtr:
		return shape{min: 1, max: MaxAtrSize}, true
	default:
		return shape{}, false
	}
}

// boundToHandle reports whether the opcode must present the live handle.
func (c Command) boundToHandle() bool {
	switch c.Op {
	case OpTransceive, OpDeactivate, OpReset, OpGetAtr:
		return true
	default:
		return false
	}
}
