package ecat

import "time"

// Engine is the wire-level protocol engine the master supervises.
//
// The engine owns the authoritative device table. The master and its health monitor call
// into the engine from different goroutines, so implementations must be safe for
// concurrent use. Device id 0 addresses all devices of the group.
type Engine interface {
	// Open binds the engine to the given network interface.
	Open(ifname string) error
	// DiscoverAndPreconfigure enumerates the devices, requests Pre-Operational for all of
	// them and returns the number of devices found.
	DiscoverAndPreconfigure(useTable bool) int
	// MapProcessImage builds the process image into iomap and returns its layout.
	// alignBytes selects byte-aligned instead of bit-packed mapping.
	MapProcessImage(iomap []byte, alignBytes bool) ImageLayout
	// ConfigureDistributedClocks configures distributed clocks, returning false on failure.
	ConfigureDistributedClocks() bool

	// ExchangeProcessData sends the outputs, receives the inputs within timeout and returns
	// the working counter of the received frame.
	ExchangeProcessData(timeout time.Duration) int

	// RequestState stores target as the requested state of device id, without sending it.
	RequestState(id uint16, target State)
	// CommitStateRequest writes the requested state of device id to the bus.
	CommitStateRequest(id uint16) int
	// PollState reads the state of device id until it equals target or timeout expires,
	// and returns the observed state. For id 0 the lowest state of all devices is returned.
	PollState(id uint16, target State, timeout time.Duration) State
	// RefreshStates reads the state of all devices and returns the lowest one.
	RefreshStates() State

	// ReconfigureDevice reconfigures a single device that dropped below its target state.
	ReconfigureDevice(id uint16, timeout time.Duration) bool
	// RecoverDevice re-addresses a device that dropped off the chain.
	RecoverDevice(id uint16, timeout time.Duration) bool

	// DeviceCount returns the number of discovered devices.
	DeviceCount() int
	// Device returns a snapshot of the record of device id.
	Device(id uint16) Device
	// SetLost sets the lost flag of device id.
	SetLost(id uint16, lost bool)
	// Group returns the working counter configuration of a process data group.
	Group(group uint8) GroupInfo

	// ReadObject reads an object dictionary entry of device id.
	ReadObject(id uint16, index uint16, subindex uint8, size int) ([]byte, error)
	// WriteObject writes an object dictionary entry of device id and returns the working counter.
	WriteObject(id uint16, index uint16, subindex uint8, data []byte) int

	// Close releases the network interface.
	Close()
}
