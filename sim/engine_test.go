package sim

import (
	"testing"
	"time"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/stretchr/testify/require"
)

const testTopologyYAML = `
devices:
  - name: EK1100
  - name: EL2004
    output_bits: 4
  - name: EL1004
    input_bits: 4
    transition_polls: 2
    has_dc: true
    propagation_delay: 320
    objects:
      "1018:01": [0x02, 0x00, 0x00, 0x00]
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	topo, err := ParseTopology([]byte(testTopologyYAML))
	require.NoError(t, err)

	e := New(topo)
	require.NoError(t, e.Open("sim0"))
	require.Equal(t, 3, e.DiscoverAndPreconfigure(false))

	return e
}

func TestParseTopology(t *testing.T) {
	require := require.New(t)

	topo, err := ParseTopology([]byte(testTopologyYAML))
	require.NoError(err)
	require.Len(topo.Devices, 3)
	require.Equal("EL1004", topo.Devices[2].Name)
	require.Equal(2, topo.Devices[2].TransitionPolls)
	require.Equal([]byte{0x02, 0x00, 0x00, 0x00}, topo.Devices[2].Objects["1018:01"])

	_, err = ParseTopology([]byte("devices:\n  - output_bits: -1\n"))
	require.ErrorContains(err, "negative process data size")

	_, err = ParseTopology([]byte("devices:\n  - objects:\n      vendor: [1]\n"))
	require.ErrorContains(err, "invalid object key")

	_, err = LoadTopology(t.TempDir() + "/missing.yaml")
	require.Error(err)
}

func TestEngine_Open(t *testing.T) {
	require := require.New(t)

	e := New(&Topology{Devices: []DeviceSpec{{}}})
	require.Error(e.Open(""))
	require.Equal(0, e.DiscoverAndPreconfigure(false))

	require.NoError(e.Open("sim0"))
	require.True(e.Opened())
	require.Equal(ecat.StateInit, e.RefreshStates())
	require.Equal("SIM001", e.Device(1).Name)

	e.Close()
	require.False(e.Opened())

	require.Error(New(nil, WithOpenFailure()).Open("sim0"))
}

func TestEngine_MapProcessImage(t *testing.T) {
	require := require.New(t)

	iomap := make([]byte, 64)

	e := newTestEngine(t)
	require.Equal(ecat.ImageLayout{OutputBytes: 1, InputBytes: 1}, e.MapProcessImage(iomap, true))
	require.Equal(ecat.StateSafeOp, e.Device(1).State)
	require.Equal(ecat.StatePreOp, e.Device(3).State)

	e = newTestEngine(t)
	require.Equal(ecat.ImageLayout{OutputBytes: 1, InputBytes: 1}, e.MapProcessImage(iomap, false))

	require.Equal(ecat.ImageLayout{}, e.MapProcessImage(make([]byte, 1), true))

	e = New(&Topology{Devices: []DeviceSpec{{OutputBits: 8}}}, WithMappingFailure())
	require.NoError(e.Open("sim0"))
	require.Equal(ecat.ImageLayout{}, e.MapProcessImage(iomap, true))
}

func TestEngine_Transitions(t *testing.T) {
	require := require.New(t)

	e := newTestEngine(t)
	e.RequestState(0, ecat.StateSafeOp)
	require.Equal(3, e.CommitStateRequest(0))

	// device 3 settles after two polls
	require.Equal(ecat.StatePreOp, e.RefreshStates())
	require.Equal(ecat.StatePreOp, e.PollState(0, ecat.StateSafeOp, time.Millisecond))

	// committing the same request again does not restart the transition
	require.Equal(3, e.CommitStateRequest(0))
	require.Equal(ecat.StateSafeOp, e.PollState(0, ecat.StateSafeOp, time.Millisecond))
	require.Equal(int64(2), e.Calls(OpPoll, 0))
	require.Equal(int64(2), e.Calls(OpCommit, 0))

	e.RequestState(2, ecat.StateOperational)
	require.Equal(1, e.CommitStateRequest(2))
	require.Equal(ecat.StateOperational, e.Device(2).State)
	require.Equal(ecat.StateSafeOp, e.Device(0).State)
}

func TestEngine_ErrorAcknowledge(t *testing.T) {
	require := require.New(t)

	e := newTestEngine(t)
	e.Refuse(2, ecat.StateSafeOp, 0x001d)

	e.RequestState(0, ecat.StateSafeOp)
	e.CommitStateRequest(0)
	dev := e.Device(2)
	require.Equal(ecat.StatePreOp|ecat.StateError, dev.State)
	require.Equal(uint16(0x001d), dev.ALStatusCode)
	require.True(e.Device(0).State.HasError())

	// neither a broadcast nor a plain request clears the error
	e.Accept(2, ecat.StateSafeOp)
	require.Equal(2, e.CommitStateRequest(0))
	e.RequestState(2, ecat.StateSafeOp)
	require.Equal(0, e.CommitStateRequest(2))
	require.True(e.Device(2).State.HasError())

	e.RequestState(2, ecat.StateSafeOp|ecat.StateAck)
	require.Equal(1, e.CommitStateRequest(2))
	dev = e.Device(2)
	require.Equal(ecat.StateSafeOp, dev.State)
	require.Equal(uint16(0), dev.ALStatusCode)
}

func TestEngine_WorkingCounter(t *testing.T) {
	require := require.New(t)

	e := newTestEngine(t)
	require.Equal(ecat.GroupInfo{OutputsWKC: 1, InputsWKC: 1}, e.Group(0))
	require.Equal(ecat.GroupInfo{}, e.Group(1))

	e.MapProcessImage(make([]byte, 8), true)
	e.SetState(2, ecat.StateOperational)
	e.SetState(3, ecat.StateSafeOp)
	require.Equal(3, e.ExchangeProcessData(time.Millisecond))

	e.Drop(3)
	require.Equal(2, e.ExchangeProcessData(time.Millisecond))

	e.ForceWKC(7)
	require.Equal(7, e.ExchangeProcessData(time.Millisecond))
	e.ForceWKC(-1)
	require.Equal(2, e.ExchangeProcessData(time.Millisecond))
	require.Equal(int64(4), e.Calls(OpExchange, 0))
}

func TestEngine_Faults(t *testing.T) {
	require := require.New(t)

	e := newTestEngine(t)

	e.Drop(2)
	require.Equal(ecat.StateNone, e.Device(2).State)
	require.False(e.ReconfigureDevice(2, time.Millisecond))
	require.False(e.RecoverDevice(2, time.Millisecond))

	e.Reconnect(2)
	require.Equal(ecat.StateNone, e.PollState(2, ecat.StateOperational, time.Millisecond))
	require.True(e.RecoverDevice(2, time.Millisecond))
	require.Equal(ecat.StateInit, e.Device(2).State)
	require.True(e.ReconfigureDevice(2, time.Millisecond))
	require.Equal(ecat.StateSafeOp, e.Device(2).State)

	e.FailReconfigure(2, true)
	require.False(e.ReconfigureDevice(2, time.Millisecond))
	require.Equal(int64(3), e.Calls(OpReconfigure, 2))
	require.Equal(int64(2), e.Calls(OpRecover, 2))

	e.RaiseError(1, ecat.StateSafeOp, 0x001b)
	require.Equal(ecat.StateSafeOp|ecat.StateError, e.Device(1).State)

	e.Restore(2, ecat.StateOperational)
	require.Equal(ecat.StateOperational, e.Device(2).State)

	e.SetLost(3, true)
	require.True(e.Device(3).IsLost)
	e.SetLost(3, false)
	require.False(e.Device(3).IsLost)
}

func TestEngine_Clocks(t *testing.T) {
	require := require.New(t)

	e := newTestEngine(t)
	require.Zero(e.Device(3).PropagationDelay)
	require.True(e.ConfigureDistributedClocks())
	require.Equal(int32(320), e.Device(3).PropagationDelay)
	require.True(e.Device(3).HasDC)

	e = New(&Topology{}, WithClockFailure())
	require.NoError(e.Open("sim0"))
	require.False(e.ConfigureDistributedClocks())
}

func TestEngine_Objects(t *testing.T) {
	require := require.New(t)

	e := newTestEngine(t)

	data, err := e.ReadObject(3, 0x1018, 0x01, 0)
	require.NoError(err)
	require.Equal([]byte{0x02, 0x00, 0x00, 0x00}, data)

	data, err = e.ReadObject(3, 0x1018, 0x01, 1)
	require.NoError(err)
	require.Equal([]byte{0x02}, data)

	_, err = e.ReadObject(3, 0x1018, 0x02, 4)
	require.ErrorIs(err, errNoObject)

	require.Equal(1, e.WriteObject(1, 0x8000, 0x01, []byte{0x01}))
	data, err = e.ReadObject(1, 0x8000, 0x01, 1)
	require.NoError(err)
	require.Equal([]byte{0x01}, data)

	e.Drop(1)
	require.Equal(0, e.WriteObject(1, 0x8000, 0x01, []byte{0x00}))
	_, err = e.ReadObject(1, 0x8000, 0x01, 1)
	require.ErrorIs(err, errNoResponse)

	e.Close()
	_, err = e.ReadObject(3, 0x1018, 0x01, 4)
	require.ErrorIs(err, errNotOpened)
}
