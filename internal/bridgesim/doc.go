// Package bridgesim runs an in-process iBox2 bridge on a real UDP
// socket. It answers discovery probes, hands out session identifiers,
// and acknowledges checksummed command frames, so client code can be
// exercised end to end without hardware.
//
// The zero-value Faults plays the protocol straight. Tests set fault
// fields to drop frames or corrupt replies; cmd/milight-sim loads the
// same knobs from a YAML Script.
//
// Every verified command frame is recorded in arrival order and can be
// inspected with Commands, including frames deliberately left
// unacknowledged.
package bridgesim
