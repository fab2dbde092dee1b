package master

import (
	"errors"
	"time"

	"github.com/arloliu/go-ecat/ecat"
)

// transitionPolicy parametrizes the state transition algorithm for one target state.
type transitionPolicy struct {
	target ecat.State
	// verifyEach requires every device to confirm target, otherwise the group state is enough.
	verifyEach bool
	// requestEach requests target on every device individually before the group request
	// is written, acknowledging pending device errors.
	requestEach bool
	// computeWKC computes the expected working counter on entry.
	computeWKC bool
	// checkTimeout bounds every state check of the polling loop.
	checkTimeout time.Duration
}

func (m *Master) policy(target ecat.State) transitionPolicy {
	p := transitionPolicy{
		target:       target,
		verifyEach:   true,
		checkTimeout: m.cfg.stateCheckTimeout,
	}

	switch target {
	case ecat.StateInit:
		p.verifyEach = m.cfg.uniformVerification
	case ecat.StateSafeOp:
		p.requestEach = true
		p.computeWKC = true
		p.checkTimeout = m.cfg.safeOpTimeout
	}

	return p
}

// SetInitState requests the Init state for all devices.
func (m *Master) SetInitState() error {
	return m.transition(m.policy(ecat.StateInit))
}

// SetPreOperationalState requests the Pre-Operational state for all devices.
func (m *Master) SetPreOperationalState() error {
	return m.transition(m.policy(ecat.StatePreOp))
}

// SetSafeOperationalState requests the Safe-Operational state for all devices and computes
// the expected working counter when the master enters Safe-Operational.
func (m *Master) SetSafeOperationalState() error {
	return m.transition(m.policy(ecat.StateSafeOp))
}

// SetOperationalState requests the Operational state for all devices.
//
// On failure the returned *ecat.TransitionError lists every device that did not reach
// Operational, each of them is also logged with its AL status text.
func (m *Master) SetOperationalState() error {
	err := m.transition(m.policy(ecat.StateOperational))
	if tErr, ok := asTransitionError(err); ok {
		for _, dev := range tErr.Pending {
			m.logger.Error("device not operational",
				"device", dev.ID, "state", dev.State,
				"al_status", dev.ALStatusCode, "al_status_text", ecat.ALStatusText(dev.ALStatusCode))
		}
	}

	return err
}

// transition drives all devices to p.target within the transition budget.
//
// The master state only changes when the transition succeeds. A failed transition is not
// retried, the caller decides whether to retry, reconfigure or abort.
func (m *Master) transition(p transitionPolicy) error {
	if err := m.checkOpened(); err != nil {
		return m.fail(err)
	}

	m.opMu.Lock()

	prevState := m.stateMgr.State()
	m.logger.Debug("start state transition", "from", prevState, "to", p.target)

	m.engine.RequestState(0, p.target)
	if p.requestEach {
		m.requestEach(p.target)
	}

	// one valid process data round before the request, devices may refuse to change state
	// while holding invalid outputs
	m.engine.ExchangeProcessData(m.cfg.receiveTimeout)
	m.engine.CommitStateRequest(0)

	observed := ecat.StateNone
	for i := 0; i < m.cfg.transitionBudget; i++ {
		m.engine.ExchangeProcessData(m.cfg.receiveTimeout)
		m.engine.CommitStateRequest(0)
		observed = m.engine.PollState(0, p.target, p.checkTimeout)
		if observed == p.target {
			m.logger.Debug("group reached state", "state", p.target, "polls", i+1)
			break
		}
	}

	m.engine.RefreshStates()

	if err := m.verify(p, observed); err != nil {
		m.opMu.Unlock()
		m.metrics.incTransitionErrCount()

		return m.fail(err)
	}

	if p.computeWKC && prevState != p.target {
		info := m.engine.Group(m.cfg.group)
		m.expectedWKC.Store(int32(info.ExpectedWKC())) //nolint:gosec
		m.metrics.incExpectedWKCUpdateCount()
		m.logger.Info("expected working counter computed",
			"group", m.cfg.group, "outputs_wkc", info.OutputsWKC, "inputs_wkc", info.InputsWKC,
			"expected_wkc", info.ExpectedWKC())
	}

	prevState = m.stateMgr.swap(p.target)
	m.opMu.Unlock()

	m.stateMgr.notify(prevState, p.target)

	return nil
}

// requestEach requests target on every device, a device holding an error gets the
// acknowledge bit along with the request.
func (m *Master) requestEach(target ecat.State) {
	count := m.DeviceCount()
	for id := 1; id <= count; id++ {
		devID := uint16(id) //nolint:gosec
		req := target
		if m.engine.Device(devID).State.HasError() {
			req |= ecat.StateAck
		}
		m.engine.RequestState(devID, req)
		m.engine.CommitStateRequest(devID)
	}
}

// verify checks the outcome of a transition. The caller must hold opMu.
func (m *Master) verify(p transitionPolicy, observed ecat.State) error {
	var pending []ecat.Device

	count := m.DeviceCount()
	for id := 1; id <= count; id++ {
		dev := m.engine.Device(uint16(id)) //nolint:gosec
		if dev.State != p.target {
			pending = append(pending, dev)
		}
	}

	if p.verifyEach {
		if len(pending) == 0 && count > 0 {
			return nil
		}
	} else if observed == p.target {
		return nil
	}

	tErr := &ecat.TransitionError{
		Target:   p.target,
		Observed: observed,
		Pending:  pending,
	}
	if len(pending) > 0 {
		tErr.Device = pending[0].ID
		tErr.Observed = pending[0].State
		tErr.ALStatusCode = pending[0].ALStatusCode
	}

	return tErr
}

func asTransitionError(err error) (*ecat.TransitionError, bool) {
	var tErr *ecat.TransitionError
	if errors.As(err, &tErr) {
		return tErr, true
	}

	return nil, false
}
