package ecat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection indicates that the engine failed to bind to the network interface.
	ErrConnection = errors.New("ecat: failed to open network interface")

	// ErrDiscovery indicates that no device was found on the chain.
	ErrDiscovery = errors.New("ecat: no devices detected")

	// ErrMapping indicates that the process image could not be built.
	ErrMapping = errors.New("ecat: process image mapping failed")

	// ErrClockConfig indicates that distributed clock configuration failed.
	ErrClockConfig = errors.New("ecat: distributed clock configuration failed")
)

var (
	// ErrTransitionTimeout indicates that the devices did not reach the requested state
	// within the polling budget.
	ErrTransitionTimeout = errors.New("ecat: state transition timeout")

	// ErrNotAllOperational indicates that at least one device is not Operational.
	ErrNotAllOperational = errors.New("ecat: not all devices reached operational state")
)

var (
	// ErrNotOpened indicates that the master has not been initialized yet.
	ErrNotOpened = errors.New("ecat: master not initialized")

	// ErrClosed indicates that the master has been shut down.
	ErrClosed = errors.New("ecat: master closed")

	// ErrNoDevice indicates that the device id is out of range.
	ErrNoDevice = errors.New("ecat: device id out of range")

	// ErrObjectAccess indicates that an object dictionary access failed.
	ErrObjectAccess = errors.New("ecat: object dictionary access failed")
)

// TransitionError is the result of a failed state transition.
//
// Device, Observed and ALStatusCode describe the first device that did not confirm the
// target state, Pending lists every such device.
type TransitionError struct {
	Target       State
	Device       uint16
	Observed     State
	ALStatusCode uint16
	Pending      []Device
}

var _ error = (*TransitionError)(nil)

func (e *TransitionError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "devices can not be set to %s state: device %d state=%s al_status=0x%04x (%s)",
		e.Target, e.Device, e.Observed, e.ALStatusCode, ALStatusText(e.ALStatusCode))

	if len(e.Pending) > 1 {
		sb.WriteString("; not reached:")
		for _, dev := range e.Pending {
			fmt.Fprintf(&sb, " [%d %s 0x%04x %s]", dev.ID, dev.State, dev.ALStatusCode, ALStatusText(dev.ALStatusCode))
		}
	}

	return sb.String()
}

// Unwrap returns ErrTransitionTimeout.
func (e *TransitionError) Unwrap() error {
	return ErrTransitionTimeout
}
