package master

// RunExchangeCycle performs one process data round and reports whether the working counter
// reached the expected working counter.
//
// It is meant to be called at the control loop cadence and blocks at most for the receive
// timeout. A working counter deficit is not an error, the health monitor reconciles the
// devices in the background.
func (m *Master) RunExchangeCycle() bool {
	if !m.opened.Load() {
		return false
	}

	wkc := m.exchangeOnce()
	expected := m.expectedWKC.Load()

	if wkc < expected {
		m.metrics.incWKCDeficitCount()
		m.logger.Debug("working counter deficit", "wkc", wkc, "expected_wkc", expected)

		return false
	}

	return true
}

// exchangeOnce sends the outputs, receives the inputs and publishes the working counter.
func (m *Master) exchangeOnce() int32 {
	wkc := int32(m.engine.ExchangeProcessData(m.cfg.receiveTimeout)) //nolint:gosec
	m.actualWKC.Store(wkc)
	m.metrics.incCycleCount()

	return wkc
}
