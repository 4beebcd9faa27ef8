package se

import (
	"errors"
	"fmt"
)

// Error codes, grouped the same way as the controller HAL codes:
// 0x400 range for caller mistakes, 0x500 range for hardware outcomes.
const (
	ErrCodeInvalidState    = -0x401
	ErrCodeAlreadyOpen     = -0x402
	ErrCodeHandleInvalid   = -0x403
	ErrCodeInvalidArgument = -0x404

	ErrCodeTimeout       = -0x501
	ErrCodeProtocol      = -0x502
	ErrCodeHardwareFault = -0x503
)

var messages = map[int]string{
	ErrCodeInvalidState:    "operation not permitted in current state",
	ErrCodeAlreadyOpen:     "a session is already open",
	ErrCodeHandleInvalid:   "stale or unknown session handle",
	ErrCodeInvalidArgument: "invalid argument",
	ErrCodeTimeout:         "secure element did not respond in time",
	ErrCodeProtocol:        "malformed response from secure element",
	ErrCodeHardwareFault:   "secure element hardware fault",
}

var kinds = map[int]string{
	ErrCodeInvalidState:    "invalid_state",
	ErrCodeAlreadyOpen:     "already_open",
	ErrCodeHandleInvalid:   "handle_invalid",
	ErrCodeInvalidArgument: "invalid_argument",
	ErrCodeTimeout:         "timeout",
	ErrCodeProtocol:        "protocol",
	ErrCodeHardwareFault:   "hardware_fault",
}

// Error is returned by every session operation that fails.
// Op and State record what was attempted and where the session stood at the time.
type Error struct {
	code  int
	Op    Opcode
	State State
	cause error
}

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrInvalidState    = &Error{code: ErrCodeInvalidState}
	ErrAlreadyOpen     = &Error{code: ErrCodeAlreadyOpen}
	ErrHandleInvalid   = &Error{code: ErrCodeHandleInvalid}
	ErrInvalidArgument = &Error{code: ErrCodeInvalidArgument}
	ErrTimeout         = &Error{code: ErrCodeTimeout}
	ErrProtocol        = &Error{code: ErrCodeProtocol}
	ErrHardwareFault   = &Error{code: ErrCodeHardwareFault}
)

func newError(code int, op Opcode, state State, cause error) *Error {
	return &Error{code: code, Op: op, State: state, cause: cause}
}

func (e *Error) Error() string {
	msg := "se"
	if e.Op != 0 {
		msg += " " + e.Op.String()
	}
	if e.State != 0 {
		msg += fmt.Sprintf(" [%s]", e.State)
	}
	msg += ": " + messages[e.code]
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Code returns the numeric error code.
func (e *Error) Code() int {
	return e.code
}

// Kind returns a short snake_case name for the code, suitable as a metric label.
func (e *Error) Kind() string {
	if k, ok := kinds[e.code]; ok {
		return k
	}
	return "unknown"
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// Faults reports whether the failure moves a live session to Faulted.
func (e *Error) Faults() bool {
	switch e.code {
	case ErrCodeTimeout, ErrCodeProtocol, ErrCodeHardwareFault:
		return true
	}
	return false
}

// IsInvalidStateError checks if an operation was rejected because of the session state.
func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsAlreadyOpenError checks if an open was attempted while a session was live.
func IsAlreadyOpenError(err error) bool {
	return errors.Is(err, ErrAlreadyOpen)
}

// IsHandleInvalidError checks if a stale or foreign handle was used.
func IsHandleInvalidError(err error) bool {
	return errors.Is(err, ErrHandleInvalid)
}

func IsInvalidArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

func IsHardwareFaultError(err error) bool {
	return errors.Is(err, ErrHardwareFault)
}
