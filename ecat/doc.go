// Package ecat defines the data model shared by the EtherCAT master supervision layer
// and the protocol engines it drives.
//
// It provides:
//   - State: the AL state value space (None, Init, Pre-Operational, Boot, Safe-Operational,
//     Operational) with the error and acknowledge bit.
//   - AtomicState: a State cell safe for concurrent readers and writers.
//   - Device, GroupInfo and ImageLayout: snapshots of the engine's device table, the
//     working counter configuration and the process image regions.
//   - Engine: the contract a protocol engine implements. Frame transmission, discovery,
//     EEPROM and object dictionary decoding stay inside the engine.
//   - Sentinel errors and TransitionError, the structured result of a failed transition.
package ecat
