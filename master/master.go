package master

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/arloliu/go-ecat/internal/task"
	"github.com/arloliu/go-ecat/logger"
	"github.com/google/uuid"
)

// Master supervises a chain of EtherCAT devices driven by a protocol engine.
//
// It owns the master state, drives the lifecycle transitions, performs the cyclic
// process data exchange and runs the health monitor in the background while the
// session is open.
type Master struct {
	cfg       *Config
	engine    ecat.Engine
	logger    logger.Logger
	sessionID string

	stateMgr *stateMgr
	taskMgr  *task.Manager

	// opMu serializes transitions, configuration steps and monitor passes, each of which
	// reads and mutates the device table as one batch. The exchange cycle never takes it.
	opMu sync.Mutex

	opened      atomic.Bool
	closed      atomic.Bool
	deviceCount atomic.Int32

	iomap  [IOMapSize]byte
	layout atomic.Pointer[ecat.ImageLayout]

	expectedWKC atomic.Int32
	actualWKC   atomic.Int32
	// recheck is the pending recheck flag of the supervised group.
	recheck atomic.Bool

	errMu   sync.Mutex
	lastErr string

	metrics Metrics
}

// New creates a master for engine. The master does not touch the engine before Initialize.
func New(ctx context.Context, engine ecat.Engine, cfg *Config) (*Master, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if engine == nil {
		return nil, errors.New("protocol engine is nil")
	}

	m := &Master{
		cfg:       cfg,
		engine:    engine,
		sessionID: uuid.NewString(),
	}
	m.logger = cfg.logger.With("session", m.sessionID)
	m.stateMgr = newStateMgr(m, m.logger, cfg.stateHandlers...)
	m.taskMgr = task.NewManager(ctx, m.logger)
	m.layout.Store(&ecat.ImageLayout{})

	return m, nil
}

// Initialize binds the engine to the network interface ifname and starts the health monitor.
// On success the master state is Init.
func (m *Master) Initialize(ifname string) error {
	if m.closed.Load() {
		return m.fail(ecat.ErrClosed)
	}
	if m.opened.Load() {
		return nil
	}

	m.opMu.Lock()
	err := m.engine.Open(ifname)
	m.opMu.Unlock()

	if err != nil {
		return m.fail(fmt.Errorf("%w: %s: %w", ecat.ErrConnection, ifname, err))
	}

	m.opened.Store(true)
	m.logger.Info("network interface opened", "ifname", ifname)

	if err := m.taskMgr.StartInterval("healthMonitor", m.monitorTask, m.cfg.monitorInterval); err != nil {
		m.logger.Error("failed to start health monitor", "error", err)
	}

	m.stateMgr.set(ecat.StateInit)
	m.engine.RefreshStates()

	return nil
}

// ConfigureDevices discovers the devices and configures them. The engine requests
// Pre-Operational for every device, so on success the master state is Pre-Operational.
func (m *Master) ConfigureDevices() error {
	if err := m.checkOpened(); err != nil {
		return m.fail(err)
	}

	m.opMu.Lock()
	count := m.engine.DiscoverAndPreconfigure(m.cfg.useConfigTable)
	m.engine.RefreshStates()
	m.opMu.Unlock()

	if count <= 0 {
		return m.fail(ecat.ErrDiscovery)
	}

	m.deviceCount.Store(int32(count)) //nolint:gosec
	m.logger.Info("devices configured", "count", count)
	m.stateMgr.set(ecat.StatePreOp)

	return nil
}

// ConfigureProcessImage maps the process image with the configured alignment policy.
func (m *Master) ConfigureProcessImage() error {
	if err := m.checkOpened(); err != nil {
		return m.fail(err)
	}

	m.opMu.Lock()
	layout := m.engine.MapProcessImage(m.iomap[:], m.cfg.byteAlignment)
	m.opMu.Unlock()

	if layout.Size() < 1 {
		return m.fail(fmt.Errorf("%w: byte_alignment=%t", ecat.ErrMapping, m.cfg.byteAlignment))
	}

	m.layout.Store(&layout)
	m.logger.Info("process image mapped",
		"output_bytes", layout.OutputBytes, "input_bytes", layout.InputBytes, "byte_alignment", m.cfg.byteAlignment)

	return nil
}

// ConfigureClocks configures distributed clocks. A failure leaves the master state unchanged.
func (m *Master) ConfigureClocks() error {
	if err := m.checkOpened(); err != nil {
		return m.fail(err)
	}

	m.opMu.Lock()
	ok := m.engine.ConfigureDistributedClocks()
	m.engine.RefreshStates()
	m.opMu.Unlock()

	if !ok {
		return m.fail(ecat.ErrClockConfig)
	}

	m.logger.Info("distributed clocks configured")

	return nil
}

// Shutdown stops the health monitor, waits for it to terminate and then closes the engine.
//
// If the monitor does not terminate within the close timeout the engine stays open and
// the error is returned, Shutdown may be called again.
func (m *Master) Shutdown() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.logger.Debug("start shutdown process")

	m.taskMgr.Stop()
	if err := m.taskMgr.Wait(m.cfg.closeTimeout); err != nil {
		m.closed.Store(false)
		return m.fail(fmt.Errorf("health monitor did not terminate: %w", err))
	}

	if m.opened.CompareAndSwap(true, false) {
		m.opMu.Lock()
		m.engine.Close()
		m.opMu.Unlock()
	}

	m.stateMgr.set(ecat.StateNone)
	m.logger.Info("master closed")

	return nil
}

// SessionID returns the random identifier of this master session.
func (m *Master) SessionID() string { return m.sessionID }

// Config returns the master configuration.
func (m *Master) Config() *Config { return m.cfg }

// Metrics returns the metrics of the master session.
func (m *Master) Metrics() *Metrics { return &m.metrics }

// State returns the master state.
func (m *Master) State() ecat.State { return m.stateMgr.State() }

// WaitState waits until the master state equals state or ctx is done.
func (m *Master) WaitState(ctx context.Context, state ecat.State) error {
	return m.stateMgr.WaitState(ctx, state)
}

// DeviceCount returns the number of devices found by ConfigureDevices.
func (m *Master) DeviceCount() int { return int(m.deviceCount.Load()) }

// ExpectedWKC returns the expected working counter computed on Safe-Operational entry.
func (m *Master) ExpectedWKC() int { return int(m.expectedWKC.Load()) }

// ActualWKC returns the working counter of the last process data exchange.
func (m *Master) ActualWKC() int { return int(m.actualWKC.Load()) }

// Layout returns the process image layout, zero before ConfigureProcessImage.
func (m *Master) Layout() ecat.ImageLayout { return *m.layout.Load() }

// Outputs returns the output region of the process image.
// The slice aliases the process image and is valid for the session lifetime.
func (m *Master) Outputs() []byte {
	l := m.layout.Load()
	return m.iomap[:l.OutputBytes]
}

// Inputs returns the input region of the process image.
// The slice aliases the process image and is valid for the session lifetime.
func (m *Master) Inputs() []byte {
	l := m.layout.Load()
	return m.iomap[l.OutputBytes:l.Size()]
}

// DeviceState reads the states of all devices and returns the state of device id.
// Device id 0 returns the lowest state of all devices.
func (m *Master) DeviceState(id uint16) ecat.State {
	if !m.opened.Load() {
		return ecat.StateNone
	}

	m.engine.RefreshStates()

	return m.engine.Device(id).State
}

// Device reads the states of all devices and returns the record of device id.
func (m *Master) Device(id uint16) (ecat.Device, error) {
	if err := m.checkOpened(); err != nil {
		return ecat.Device{}, err
	}
	if id == 0 || int(id) > m.DeviceCount() {
		return ecat.Device{}, fmt.Errorf("%w: %d", ecat.ErrNoDevice, id)
	}

	m.engine.RefreshStates()

	return m.engine.Device(id), nil
}

// Devices reads the states of all devices and returns a snapshot of every record.
func (m *Master) Devices() []ecat.Device {
	if !m.opened.Load() {
		return nil
	}

	m.engine.RefreshStates()

	count := m.DeviceCount()
	devices := make([]ecat.Device, 0, count)
	for id := 1; id <= count; id++ {
		devices = append(devices, m.engine.Device(uint16(id))) //nolint:gosec
	}

	return devices
}

// AllDevicesOperational returns true if every configured device reports Operational.
// It returns false when no device has been configured.
func (m *Master) AllDevicesOperational() bool {
	devices := m.Devices()
	if len(devices) == 0 {
		return false
	}

	for _, dev := range devices {
		if !dev.State.IsOperational() {
			m.setLastError(fmt.Sprintf("%s: %s", ecat.ErrNotAllOperational, dev.StatusText()))
			return false
		}
	}

	return true
}

// LastError returns the message of the last failure, empty if nothing failed yet.
func (m *Master) LastError() string {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	return m.lastErr
}

func (m *Master) setLastError(msg string) {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	m.lastErr = msg
}

// fail records err as the last error and returns it.
func (m *Master) fail(err error) error {
	m.setLastError(err.Error())
	m.logger.Error("operation failed", "error", err)

	return err
}

func (m *Master) checkOpened() error {
	if m.closed.Load() {
		return ecat.ErrClosed
	}
	if !m.opened.Load() {
		return ecat.ErrNotOpened
	}

	return nil
}
