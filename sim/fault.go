package sim

import "github.com/arloliu/go-ecat/ecat"

// Drop disconnects device id from the chain. It reports None until it is reconnected.
func (e *Engine) Drop(id uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		dev.dropped = true
		dev.state = ecat.StateNone
		dev.pendingPolls = 0
	}
}

// Reconnect plugs device id back in. It lost its configured address and keeps reporting
// None until RecoverDevice re-addresses it.
func (e *Engine) Reconnect(id uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		dev.dropped = false
	}
}

// Restore plugs device id back in and lets it answer in state st right away.
func (e *Engine) Restore(id uint16, st ecat.State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		dev.dropped = false
		dev.state = st
		dev.pendingPolls = 0
	}
}

// RaiseError sets the error bit of device id with the given AL status code,
// e.g. a sync manager watchdog (0x001b) drops an Operational device to SAFE_OP+ERROR.
func (e *Engine) RaiseError(id uint16, st ecat.State, code uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil && !dev.dropped {
		dev.state = st.Base() | ecat.StateError
		dev.alStatus = code
		dev.pendingPolls = 0
	}
}

// SetState forces the state of device id without any transition.
func (e *Engine) SetState(id uint16, st ecat.State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil && !dev.dropped {
		dev.state = st
		dev.pendingPolls = 0
	}
}

// Refuse makes device id reject requests for target with the given AL status code.
func (e *Engine) Refuse(id uint16, target ecat.State, code uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		if dev.refuse == nil {
			dev.refuse = make(map[ecat.State]uint16)
		}
		dev.refuse[target.Base()] = code
	}
}

// Accept removes a refusal installed with Refuse.
func (e *Engine) Accept(id uint16, target ecat.State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		delete(dev.refuse, target.Base())
	}
}

// FailReconfigure makes ReconfigureDevice fail for device id while fail is true.
func (e *Engine) FailReconfigure(id uint16, fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev := e.device(id); dev != nil {
		dev.reconfigErr = fail
	}
}

// ForceWKC makes ExchangeProcessData return wkc regardless of the device states.
// A negative value restores the computed working counter.
func (e *Engine) ForceWKC(wkc int) {
	e.forcedWKC.Store(int64(wkc))
}
