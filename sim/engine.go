package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/puzpuzpuz/xsync/v3"
)

// Op names an engine operation whose calls are counted per device.
type Op string

const (
	OpCommit      Op = "commit"
	OpExchange    Op = "exchange"
	OpPoll        Op = "poll"
	OpReconfigure Op = "reconfigure"
	OpRecover     Op = "recover"
)

var (
	errNotOpened   = errors.New("sim: engine not opened")
	errNoInterface = errors.New("sim: no such interface")
	errNoObject    = errors.New("sim: object does not exist")
	errNoResponse  = errors.New("sim: device does not respond")
)

type device struct {
	spec DeviceSpec

	state     ecat.State
	requested ecat.State
	alStatus  uint16
	lost      bool

	// pending is the state the device settles in after pendingPolls further polls.
	pending      ecat.State
	pendingPolls int

	// dropped marks a device that is physically disconnected from the chain.
	dropped     bool
	refuse      map[ecat.State]uint16
	reconfigErr bool
	dcReady     bool
}

func (d *device) responding() bool {
	return !d.dropped && d.state != ecat.StateNone
}

type callKey struct {
	op Op
	id uint16
}

// Engine is an in-memory ecat.Engine simulating a chain of devices.
//
// Transitions requested with CommitStateRequest settle after the configured number of
// PollState or ExchangeProcessData calls. Fault injection methods change device state the
// way a real chain misbehaves: devices drop off, raise errors or refuse state changes.
type Engine struct {
	mu        sync.Mutex
	devices   []*device
	opened    bool
	requested ecat.State // requested state of device 0
	iomap     []byte
	layout    ecat.ImageLayout

	failOpen    bool
	failMapping bool
	failClocks  bool

	forcedWKC atomic.Int64
	objects   *xsync.MapOf[objectKey, []byte]
	calls     *xsync.MapOf[callKey, *xsync.Counter]
}

var _ ecat.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithOpenFailure makes Open fail.
func WithOpenFailure() Option {
	return func(e *Engine) { e.failOpen = true }
}

// WithMappingFailure makes MapProcessImage return an empty layout.
func WithMappingFailure() Option {
	return func(e *Engine) { e.failMapping = true }
}

// WithClockFailure makes ConfigureDistributedClocks fail.
func WithClockFailure() Option {
	return func(e *Engine) { e.failClocks = true }
}

// New creates a simulated engine for the given topology.
func New(topo *Topology, opts ...Option) *Engine {
	e := &Engine{
		objects: xsync.NewMapOf[objectKey, []byte](),
		calls:   xsync.NewMapOf[callKey, *xsync.Counter](),
	}
	e.forcedWKC.Store(-1)

	if topo != nil {
		for i, spec := range topo.Devices {
			id := uint16(i + 1) //nolint:gosec
			if spec.Name == "" {
				spec.Name = fmt.Sprintf("SIM%03d", id)
			}
			e.devices = append(e.devices, &device{spec: spec})

			for key, data := range spec.Objects {
				k, _ := parseObjectKey(key)
				k.device = id
				e.objects.Store(k, append([]byte(nil), data...))
			}
		}
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Open implements ecat.Engine.
func (e *Engine) Open(ifname string) error {
	if ifname == "" || e.failOpen {
		return fmt.Errorf("sim: open %q: %w", ifname, errNoInterface)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.opened = true
	for _, dev := range e.devices {
		if !dev.dropped {
			dev.state = ecat.StateInit
		}
	}

	return nil
}

// DiscoverAndPreconfigure implements ecat.Engine.
func (e *Engine) DiscoverAndPreconfigure(_ bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened {
		return 0
	}

	count := 0
	for _, dev := range e.devices {
		if dev.dropped {
			continue
		}
		count++
		dev.state = ecat.StatePreOp
		dev.requested = ecat.StatePreOp
		dev.alStatus = 0
		dev.pendingPolls = 0
	}
	e.requested = ecat.StatePreOp

	return count
}

// MapProcessImage implements ecat.Engine. Mapping requests Safe-Operational for all devices.
func (e *Engine) MapProcessImage(iomap []byte, alignBytes bool) ecat.ImageLayout {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened || e.failMapping {
		return ecat.ImageLayout{}
	}

	var layout ecat.ImageLayout
	if alignBytes {
		for _, dev := range e.devices {
			layout.OutputBytes += (dev.spec.OutputBits + 7) / 8
			layout.InputBytes += (dev.spec.InputBits + 7) / 8
		}
	} else {
		outBits, inBits := 0, 0
		for _, dev := range e.devices {
			outBits += dev.spec.OutputBits
			inBits += dev.spec.InputBits
		}
		layout.OutputBytes = (outBits + 7) / 8
		layout.InputBytes = (inBits + 7) / 8
	}

	if layout.Size() > len(iomap) {
		return ecat.ImageLayout{}
	}

	e.iomap = iomap
	e.layout = layout
	for _, dev := range e.devices {
		e.apply(dev, ecat.StateSafeOp, false)
	}

	return layout
}

// ConfigureDistributedClocks implements ecat.Engine.
func (e *Engine) ConfigureDistributedClocks() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened || e.failClocks {
		return false
	}

	for _, dev := range e.devices {
		dev.dcReady = dev.spec.HasDC
	}

	return true
}

// ExchangeProcessData implements ecat.Engine. Inputs echo the outputs of the previous cycle.
func (e *Engine) ExchangeProcessData(_ time.Duration) int {
	e.count(OpExchange, 0)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.settle()

	if n := len(e.iomap); n > 0 && e.layout.InputBytes > 0 && e.layout.OutputBytes > 0 {
		out := e.iomap[:e.layout.OutputBytes]
		copy(e.iomap[e.layout.OutputBytes:e.layout.Size()], out)
	}

	if forced := e.forcedWKC.Load(); forced >= 0 {
		return int(forced)
	}

	wkc := 0
	for _, dev := range e.devices {
		if !dev.responding() {
			continue
		}
		switch dev.state {
		case ecat.StateOperational:
			if dev.spec.OutputBits > 0 {
				wkc += 2
			}
			if dev.spec.InputBits > 0 {
				wkc++
			}
		case ecat.StateSafeOp:
			if dev.spec.InputBits > 0 {
				wkc++
			}
		}
	}

	return wkc
}

// RequestState implements ecat.Engine.
func (e *Engine) RequestState(id uint16, target ecat.State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == 0 {
		e.requested = target
		return
	}

	if dev := e.device(id); dev != nil {
		dev.requested = target
	}
}

// CommitStateRequest implements ecat.Engine. It returns the number of devices that
// accepted the request.
func (e *Engine) CommitStateRequest(id uint16) int {
	e.count(OpCommit, id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if id != 0 {
		dev := e.device(id)
		if dev == nil || !e.apply(dev, dev.requested, false) {
			return 0
		}

		return 1
	}

	wkc := 0
	for _, dev := range e.devices {
		if e.apply(dev, e.requested, true) {
			dev.requested = e.requested
			wkc++
		}
	}

	return wkc
}

// PollState implements ecat.Engine. Every poll lets pending transitions progress by one step.
func (e *Engine) PollState(id uint16, _ ecat.State, _ time.Duration) ecat.State {
	e.count(OpPoll, id)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.settle()

	if id == 0 {
		return e.lowest()
	}
	if dev := e.device(id); dev != nil {
		return e.observed(dev)
	}

	return ecat.StateNone
}

// RefreshStates implements ecat.Engine.
func (e *Engine) RefreshStates() ecat.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lowest()
}

// ReconfigureDevice implements ecat.Engine. A reconfigured device ends up in Safe-Operational.
func (e *Engine) ReconfigureDevice(id uint16, _ time.Duration) bool {
	e.count(OpReconfigure, id)

	e.mu.Lock()
	defer e.mu.Unlock()

	dev := e.device(id)
	if dev == nil || !dev.responding() || dev.reconfigErr {
		return false
	}

	dev.state = ecat.StateSafeOp
	dev.requested = ecat.StateSafeOp
	dev.alStatus = 0
	dev.pendingPolls = 0

	return true
}

// RecoverDevice implements ecat.Engine. A recovered device answers again in Init.
func (e *Engine) RecoverDevice(id uint16, _ time.Duration) bool {
	e.count(OpRecover, id)

	e.mu.Lock()
	defer e.mu.Unlock()

	dev := e.device(id)
	if dev == nil || dev.dropped {
		return false
	}

	dev.state = ecat.StateInit
	dev.requested = ecat.StateInit
	dev.alStatus = 0
	dev.pendingPolls = 0

	return true
}

// DeviceCount implements ecat.Engine.
func (e *Engine) DeviceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.devices)
}

// Device implements ecat.Engine.
func (e *Engine) Device(id uint16) ecat.Device {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == 0 {
		return ecat.Device{ID: 0, Name: "group", State: e.lowest()}
	}

	dev := e.device(id)
	if dev == nil {
		return ecat.Device{ID: id}
	}

	snapshot := ecat.Device{
		ID:           id,
		Name:         dev.spec.Name,
		State:        e.observed(dev),
		ALStatusCode: dev.alStatus,
		Group:        dev.spec.Group,
		IsLost:       dev.lost,
		OutputBits:   dev.spec.OutputBits,
		InputBits:    dev.spec.InputBits,
		HasDC:        dev.spec.HasDC,
	}
	if dev.dcReady {
		snapshot.PropagationDelay = dev.spec.PropagationDelay
	}

	return snapshot
}

// SetLost implements ecat.Engine.
func (e *Engine) SetLost(id uint16, lost bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		dev.lost = lost
	}
}

// Group implements ecat.Engine.
func (e *Engine) Group(group uint8) ecat.GroupInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	var info ecat.GroupInfo
	for _, dev := range e.devices {
		if dev.spec.Group != group {
			continue
		}
		if dev.spec.OutputBits > 0 {
			info.OutputsWKC++
		}
		if dev.spec.InputBits > 0 {
			info.InputsWKC++
		}
	}

	return info
}

// ReadObject implements ecat.Engine.
func (e *Engine) ReadObject(id uint16, index uint16, subindex uint8, size int) ([]byte, error) {
	if !e.Opened() {
		return nil, errNotOpened
	}
	if !e.isResponding(id) {
		return nil, fmt.Errorf("device %d: %w", id, errNoResponse)
	}

	data, ok := e.objects.Load(objectKey{device: id, index: index, subindex: subindex})
	if !ok {
		return nil, fmt.Errorf("device %d object 0x%04x:%02x: %w", id, index, subindex, errNoObject)
	}

	if size > 0 && size < len(data) {
		data = data[:size]
	}

	return append([]byte(nil), data...), nil
}

// WriteObject implements ecat.Engine.
func (e *Engine) WriteObject(id uint16, index uint16, subindex uint8, data []byte) int {
	if !e.isResponding(id) {
		return 0
	}

	e.objects.Store(objectKey{device: id, index: index, subindex: subindex}, append([]byte(nil), data...))

	return 1
}

// Close implements ecat.Engine.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opened = false
	e.iomap = nil
}

// Opened returns true while the engine is bound to an interface.
func (e *Engine) Opened() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.opened
}

// Calls returns how often op was invoked for device id.
func (e *Engine) Calls(op Op, id uint16) int64 {
	if c, ok := e.calls.Load(callKey{op: op, id: id}); ok {
		return c.Value()
	}

	return 0
}

func (e *Engine) count(op Op, id uint16) {
	c, _ := e.calls.LoadOrCompute(callKey{op: op, id: id}, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	c.Inc()
}

func (e *Engine) isResponding(id uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	dev := e.device(id)

	return e.opened && dev != nil && dev.responding()
}

// device returns the device with the given id, the caller must hold mu.
func (e *Engine) device(id uint16) *device {
	if id == 0 || int(id) > len(e.devices) {
		return nil
	}

	return e.devices[id-1]
}

func (e *Engine) observed(dev *device) ecat.State {
	if dev.dropped {
		return ecat.StateNone
	}

	return dev.state
}

// lowest returns the group representative state, carrying the error bit of any device.
func (e *Engine) lowest() ecat.State {
	if len(e.devices) == 0 {
		return ecat.StateNone
	}

	lowest := ecat.State(0xff)
	hasErr := false
	for _, dev := range e.devices {
		st := e.observed(dev)
		if st.Base() < lowest {
			lowest = st.Base()
		}
		hasErr = hasErr || st.HasError()
	}

	if hasErr {
		return lowest | ecat.StateError
	}

	return lowest
}

// apply processes a state request written to dev and reports whether the device accepted it.
//
// A device holding an error ignores requests without the acknowledge bit, and a
// broadcast never acknowledges errors.
func (e *Engine) apply(dev *device, req ecat.State, broadcast bool) bool {
	if !dev.responding() {
		return false
	}

	target := req.Base()

	if dev.state.HasError() {
		if broadcast || req&ecat.StateAck == 0 {
			return false
		}
		dev.state = dev.state.Base()
		dev.alStatus = 0
	}

	if code, ok := dev.refuse[target]; ok {
		dev.state = dev.state.Base() | ecat.StateError
		dev.alStatus = code
		dev.pendingPolls = 0

		return true
	}

	switch {
	case target == dev.state:
		dev.pendingPolls = 0
	case dev.pendingPolls > 0 && dev.pending == target:
		// transition already in progress
	case dev.spec.TransitionPolls > 0:
		dev.pending = target
		dev.pendingPolls = dev.spec.TransitionPolls
	default:
		dev.state = target
		dev.pendingPolls = 0
	}

	return true
}

// settle advances pending transitions by one step, the caller must hold mu.
func (e *Engine) settle() {
	for _, dev := range e.devices {
		if dev.pendingPolls == 0 || !dev.responding() {
			continue
		}
		dev.pendingPolls--
		if dev.pendingPolls == 0 {
			dev.state = dev.pending
		}
	}
}
