package master

import "sync/atomic"

// Metrics contains atomic metrics for a master session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CycleCount indicates the number of process data exchange cycles.
	CycleCount atomic.Uint64
	// WKCDeficitCount indicates the number of cycles whose working counter was below expected.
	WKCDeficitCount atomic.Uint64
	// ExpectedWKCUpdateCount indicates how often the expected working counter was computed.
	ExpectedWKCUpdateCount atomic.Uint64
	// TransitionErrCount indicates the number of failed state transitions.
	TransitionErrCount atomic.Uint64

	// MonitorPassCount indicates the number of health monitor passes that did corrective work.
	MonitorPassCount atomic.Uint64
	// AckCount indicates the number of error acknowledgements sent to devices.
	AckCount atomic.Uint64
	// PromoteCount indicates the number of Operational requests sent to Safe-Operational devices.
	PromoteCount atomic.Uint64
	// ReconfigureCount indicates the number of successful device reconfigurations.
	ReconfigureCount atomic.Uint64
	// ReconfigureErrCount indicates the number of failed device reconfigurations.
	ReconfigureErrCount atomic.Uint64
	// RecoverCount indicates the number of successful device recoveries.
	RecoverCount atomic.Uint64
	// RecoverErrCount indicates the number of failed device recoveries.
	RecoverErrCount atomic.Uint64
	// LostCount indicates the number of devices flagged lost.
	LostCount atomic.Uint64
	// FoundCount indicates the number of lost devices that answered again by themselves.
	FoundCount atomic.Uint64
	// RecoveredCount indicates how often the supervised group fully returned to Operational.
	RecoveredCount atomic.Uint64
}

func (m *Metrics) incCycleCount() { m.CycleCount.Add(1) }

func (m *Metrics) incWKCDeficitCount() { m.WKCDeficitCount.Add(1) }

func (m *Metrics) incExpectedWKCUpdateCount() { m.ExpectedWKCUpdateCount.Add(1) }

func (m *Metrics) incTransitionErrCount() { m.TransitionErrCount.Add(1) }

func (m *Metrics) incMonitorPassCount() { m.MonitorPassCount.Add(1) }

func (m *Metrics) incAckCount() { m.AckCount.Add(1) }

func (m *Metrics) incPromoteCount() { m.PromoteCount.Add(1) }

func (m *Metrics) incReconfigureCount() { m.ReconfigureCount.Add(1) }

func (m *Metrics) incReconfigureErrCount() { m.ReconfigureErrCount.Add(1) }

func (m *Metrics) incRecoverCount() { m.RecoverCount.Add(1) }

func (m *Metrics) incRecoverErrCount() { m.RecoverErrCount.Add(1) }

func (m *Metrics) incLostCount() { m.LostCount.Add(1) }

func (m *Metrics) incFoundCount() { m.FoundCount.Add(1) }

func (m *Metrics) incRecoveredCount() { m.RecoveredCount.Add(1) }
