package master

import "github.com/arloliu/go-ecat/ecat"

// monitorTask is the body of the health monitor interval task.
func (m *Master) monitorTask() bool {
	m.checkHealth()
	return true
}

// needsCheck reports whether the supervised group requires corrective work: the master is
// Operational and either the working counter fell short or a recheck is pending.
func (m *Master) needsCheck() bool {
	if !m.stateMgr.Is(ecat.StateOperational) {
		return false
	}

	return m.actualWKC.Load() < m.expectedWKC.Load() || m.recheck.Load()
}

// checkHealth runs one health monitor pass and reports whether corrective work was done.
//
// Every device of the supervised group that is not Operational advances by one recovery
// step, and every lost device is re-examined. The recheck flag stays set until a pass
// finds the whole group Operational.
func (m *Master) checkHealth() bool {
	if !m.needsCheck() {
		return false
	}

	m.opMu.Lock()

	// a transition may have left Operational while we waited for the lock
	if !m.needsCheck() {
		m.opMu.Unlock()
		return false
	}

	m.metrics.incMonitorPassCount()

	group := m.cfg.group
	wasPending := m.recheck.Swap(false)
	m.engine.RefreshStates()

	pending := false
	count := m.DeviceCount()
	for i := 1; i <= count; i++ {
		id := uint16(i) //nolint:gosec

		dev := m.engine.Device(id)
		if dev.Group == group && dev.State != ecat.StateOperational {
			pending = true
			m.reconcileDevice(dev)
		}

		m.examineLost(id)
	}

	if pending {
		m.recheck.Store(true)
		m.opMu.Unlock()

		return true
	}

	m.opMu.Unlock()

	if !wasPending {
		m.logger.Debug("working counter deficit with all devices operational",
			"wkc", m.actualWKC.Load(), "expected_wkc", m.expectedWKC.Load())

		return true
	}

	m.metrics.incRecoveredCount()
	m.logger.Info("all devices resumed OPERATIONAL", "group", group)

	for _, handler := range m.cfg.recoveredHandlers {
		handler(m, group)
	}

	return true
}

// reconcileDevice applies one recovery step to a device that is not Operational.
// Lost devices are left to examineLost. The caller must hold opMu.
func (m *Master) reconcileDevice(dev ecat.Device) {
	if dev.IsLost {
		return
	}

	switch {
	case dev.State == ecat.StateSafeOp|ecat.StateError:
		m.logger.Error("device in SAFE_OP + ERROR, attempting ack",
			"device", dev.ID, "al_status", dev.ALStatusCode, "al_status_text", ecat.ALStatusText(dev.ALStatusCode))
		m.engine.RequestState(dev.ID, ecat.StateSafeOp|ecat.StateAck)
		m.engine.CommitStateRequest(dev.ID)
		m.metrics.incAckCount()

	case dev.State == ecat.StateSafeOp:
		m.logger.Warn("device in SAFE_OP, change to OPERATIONAL", "device", dev.ID)
		m.engine.RequestState(dev.ID, ecat.StateOperational)
		m.engine.CommitStateRequest(dev.ID)
		m.metrics.incPromoteCount()

	case !dev.State.IsNone():
		if !m.engine.ReconfigureDevice(dev.ID, m.cfg.recoveryTimeout) {
			m.metrics.incReconfigureErrCount()
			m.logger.Debug("device reconfiguration failed", "device", dev.ID, "state", dev.State)

			return
		}
		m.engine.SetLost(dev.ID, false)
		m.metrics.incReconfigureCount()
		m.logger.Info("device reconfigured", "device", dev.ID)

	default:
		if m.engine.PollState(dev.ID, ecat.StateOperational, m.cfg.recheckTimeout).IsNone() {
			m.engine.SetLost(dev.ID, true)
			m.metrics.incLostCount()
			m.logger.Error("device lost", "device", dev.ID)
		}
	}
}

// examineLost recovers or clears the lost flag of device id. The caller must hold opMu.
func (m *Master) examineLost(id uint16) {
	dev := m.engine.Device(id)
	if !dev.IsLost {
		return
	}

	if !dev.State.IsNone() {
		m.engine.SetLost(id, false)
		m.metrics.incFoundCount()
		m.logger.Info("device found", "device", id, "state", dev.State)

		return
	}

	if !m.engine.RecoverDevice(id, m.cfg.recoveryTimeout) {
		m.metrics.incRecoverErrCount()
		m.logger.Debug("device recovery failed", "device", id)

		return
	}

	m.engine.SetLost(id, false)
	m.metrics.incRecoverCount()
	m.logger.Info("device recovered", "device", id)
}
