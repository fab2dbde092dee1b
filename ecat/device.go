package ecat

import "fmt"

// Device is a snapshot of one device record held by the protocol engine.
//
// Device id 0 is the group representative: its State is the lowest state of all devices
// in the group as seen by the last state read.
type Device struct {
	// ID is the position of the device in the chain, 1..N, stable for the session.
	ID uint16
	// Name is the device name read from the device information area.
	Name string
	// State is the last reported AL state, including the error bit.
	State State
	// ALStatusCode is the last AL status code reported by the device.
	ALStatusCode uint16
	// Group is the process data group the device belongs to.
	Group uint8
	// IsLost indicates the device stopped responding and waits for recovery.
	IsLost bool

	// OutputBits and InputBits are the mapped process data sizes.
	OutputBits int
	InputBits  int
	// PropagationDelay is the propagation delay in nanoseconds measured by distributed clocks.
	PropagationDelay int32
	// HasDC indicates the device supports distributed clocks.
	HasDC bool
}

// StatusText returns a one-line diagnostic of the device state and AL status.
func (d Device) StatusText() string {
	return fmt.Sprintf("device %d state=%s al_status=0x%04x (%s)",
		d.ID, d.State, d.ALStatusCode, ALStatusText(d.ALStatusCode))
}

// GroupInfo holds the working counter configuration of a process data group.
type GroupInfo struct {
	// OutputsWKC is the expected working counter contribution of the output frames.
	OutputsWKC int
	// InputsWKC is the expected working counter contribution of the input frames.
	InputsWKC int
}

// ExpectedWKC returns the expected working counter of one cyclic exchange.
// Outputs are counted twice because a read-write command increments the counter on
// both the write and the read access.
func (g GroupInfo) ExpectedWKC() int {
	return 2*g.OutputsWKC + g.InputsWKC
}

// ImageLayout describes the process image regions built by mapping.
// Outputs start at offset 0, inputs follow the outputs.
type ImageLayout struct {
	OutputBytes int
	InputBytes  int
}

// Size returns the number of used process image bytes.
func (l ImageLayout) Size() int {
	return l.OutputBytes + l.InputBytes
}

var alStatusText = map[uint16]string{
	0x0000: "No error",
	0x0001: "Unspecified error",
	0x0002: "No memory",
	0x0011: "Invalid requested state change",
	0x0012: "Unknown requested state",
	0x0013: "Bootstrap not supported",
	0x0014: "No valid firmware",
	0x0015: "Invalid mailbox configuration",
	0x0016: "Invalid mailbox configuration",
	0x0017: "Invalid sync manager configuration",
	0x0018: "No valid inputs available",
	0x0019: "No valid outputs",
	0x001a: "Synchronization error",
	0x001b: "Sync manager watchdog",
	0x001c: "Invalid sync Manager types",
	0x001d: "Invalid output configuration",
	0x001e: "Invalid input configuration",
	0x001f: "Invalid watchdog configuration",
	0x0020: "Slave needs cold start",
	0x0021: "Slave needs INIT",
	0x0022: "Slave needs PREOP",
	0x0023: "Slave needs SAFEOP",
	0x0024: "Invalid input mapping",
	0x0025: "Invalid output mapping",
	0x0026: "Inconsistent settings",
	0x0027: "Freerun not supported",
	0x0028: "Synchronisation not supported",
	0x0029: "Freerun needs 3buffer mode",
	0x002a: "Background watchdog",
	0x002b: "No valid Inputs and Outputs",
	0x002c: "Fatal sync error",
	0x002d: "No sync error",
	0x0030: "Invalid DC SYNC configuration",
	0x0031: "Invalid DC latch configuration",
	0x0032: "PLL error",
	0x0033: "DC sync IO error",
	0x0034: "DC sync timeout error",
	0x0035: "DC invalid sync cycle time",
	0x0036: "DC invalid sync0 cycle time",
	0x0037: "DC invalid sync1 cycle time",
	0x0041: "MBX_AOE",
	0x0042: "MBX_EOE",
	0x0043: "MBX_COE",
	0x0044: "MBX_FOE",
	0x0045: "MBX_SOE",
	0x004f: "MBX_VOE",
	0x0050: "EEPROM no access",
	0x0051: "EEPROM error",
	0x0060: "Slave restarted locally",
	0x0061: "Device identification value updated",
	0x00f0: "Application controller available",
}

// ALStatusText returns the human readable text of an AL status code.
func ALStatusText(code uint16) string {
	if text, ok := alStatusText[code]; ok {
		return text
	}

	return "Unknown"
}
