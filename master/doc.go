// Package master provides the supervision layer of an EtherCAT master: the lifecycle
// controller, the cyclic process data exchange and the health monitor.
//
// A Master drives a protocol engine implementing ecat.Engine. The engine performs frame
// transmission and owns the device table, the master decides which states to request and
// interprets the results.
//
// Lifecycle:
//
//	cfg, _ := master.NewConfig(master.WithLogger(l))
//	m, _ := master.New(ctx, engine, cfg)
//	m.Initialize("eth0")          // Init, starts the health monitor
//	m.ConfigureDevices()          // Pre-Operational
//	m.ConfigureProcessImage()
//	m.ConfigureClocks()
//	m.SetSafeOperationalState()   // computes the expected working counter
//	m.SetOperationalState()
//	for running {
//		healthy := m.RunExchangeCycle()
//	}
//	m.SetInitState()
//	m.Shutdown()
//
// State Transitions:
// The four transitions share one algorithm: request the target for the group, send one
// process data round, write the request and poll the group state within the transition
// budget. Init checks the group state only unless WithUniformVerification is set, the other
// transitions require every device to confirm the target. A failed transition returns an
// *ecat.TransitionError and leaves the master state unchanged.
//
// Health Monitor:
// While the master is Operational and either the working counter falls short or a recheck
// is pending, the monitor moves every non-Operational device of the supervised group one
// step forward: acknowledge SAFE_OP+ERROR, promote SAFE_OP, reconfigure any other answering
// device, flag silent devices lost and recover them. Recovery results are only logged and
// counted in Metrics; RunExchangeCycle and AllDevicesOperational expose the health verdict.
//
// Concurrency:
// Transitions, configuration steps and monitor passes are serialized. RunExchangeCycle
// never waits for them, it only touches the engine and the atomic working counter cells.
package master
