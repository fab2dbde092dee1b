package ecat

import "sync/atomic"

// State is the EtherCAT application-layer state of the master or of a single device.
//
// The low nibble carries the operating state, bit 4 carries the error indication
// reported by a device (or the acknowledge request written by the master).
type State uint16

// Operating states. The values match the AL control / AL status register encoding.
const (
	StateNone        State = 0x00
	StateInit        State = 0x01
	StatePreOp       State = 0x02
	StateBoot        State = 0x03
	StateSafeOp      State = 0x04
	StateOperational State = 0x08

	// StateError is set by a device in its AL status when it refused or dropped a state.
	StateError State = 0x10
	// StateAck is written together with a state request to acknowledge a device error.
	StateAck State = 0x10
)

const stateMask State = 0x0f

// Base returns the operating state without the error/acknowledge bit.
func (s State) Base() State { return s & stateMask }

// HasError returns true if the error indication bit is set.
func (s State) HasError() bool { return s&StateError != 0 }

// IsNone returns true if no state is reported, i.e. the device does not respond.
func (s State) IsNone() bool { return s == StateNone }

// IsOperational returns true if the state is exactly Operational without error.
func (s State) IsOperational() bool { return s == StateOperational }

// String returns the short state name, e.g. "SAFE_OP" or "SAFE_OP+ERROR".
func (s State) String() string {
	var name string
	switch s.Base() {
	case StateBoot:
		name = "BOOT"
	case StateInit:
		name = "INIT"
	case StatePreOp:
		name = "PRE_OP"
	case StateSafeOp:
		name = "SAFE_OP"
	case StateOperational:
		name = "OP"
	default:
		name = "NONE"
	}

	if s.HasError() {
		return name + "+ERROR"
	}

	return name
}

// AtomicState is a State cell that can be shared between goroutines.
type AtomicState struct {
	state atomic.Uint32
}

// Load returns the current state.
func (st *AtomicState) Load() State {
	return State(st.state.Load())
}

// Store sets the state.
func (st *AtomicState) Store(s State) {
	st.state.Store(uint32(s))
}

// Swap sets the state and returns the previous one.
func (st *AtomicState) Swap(s State) State {
	return State(st.state.Swap(uint32(s)))
}

// Is returns true if the current state equals s.
func (st *AtomicState) Is(s State) bool {
	return st.Load() == s
}

func (st *AtomicState) String() string {
	return st.Load().String()
}
