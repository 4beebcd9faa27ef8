package se

import "fmt"

// State is the lifecycle position of a Secure Element session.
type State int

const (
	StateClosed State = iota + 1
	StateOpen
	StateActivated
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateActivated:
		return "Activated"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// key is the name the state carries inside the FSM.
func (s State) key() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateActivated:
		return "activated"
	case StateFaulted:
		return "faulted"
	default:
		return ""
	}
}

func stateFromKey(k string) State {
	for _, s := range []State{StateClosed, StateOpen, StateActivated, StateFaulted} {
		if s.key() == k {
			return s
		}
	}
	return 0
}

// Opcode identifies a session operation and the transport primitive behind it.
type Opcode int

const (
	OpOpen Opcode = iota + 1
	OpDisconnect
	OpActivate
	OpDeactivate
	OpReset
	OpGetAtr
	OpTransceive
)

func (o Opcode) String() string {
	switch o {
	case OpOpen:
		return "Open"
	case OpDisconnect:
		return "Disconnect"
	case OpActivate:
		return "Activate"
	case OpDeactivate:
		return "Deactivate"
	case OpReset:
		return "Reset"
	case OpGetAtr:
		return "GetAtr"
	case OpTransceive:
		return "Transceive"
	default:
		return fmt.Sprintf("Opcode(%d)", int(o))
	}
}

// event is the FSM event fired when the operation succeeds.
func (o Opcode) event() string {
	switch o {
	case OpOpen:
		return evOpen
	case OpDisconnect:
		return evDisconnect
	case OpActivate:
		return evActivate
	case OpDeactivate:
		return evDeactivate
	case OpReset:
		return evReset
	case OpGetAtr:
		return evGetAtr
	case OpTransceive:
		return evTransceive
	default:
		return ""
	}
}
