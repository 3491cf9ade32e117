// Package device keeps track of which LCD panels are attached.
//
// The Registry owns one driver instance per supported panel, created at
// startup, plus the virtual screen. Enumerate probes each driver and
// returns the attached ones keyed by identity; the virtual screen is
// always included. Because the driver objects are reused, repeated
// enumeration never leaks transport handles, and probing never opens or
// closes a device.
//
// The result of the last enumeration is cached for Lookup and
// Descriptors, which the control API calls far more often than the bus
// needs rescanning.
package device
