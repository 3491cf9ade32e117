// Package serialpanel drives the QDTECH 3.5" panel (serial number
// QDTFT35_V1COM, 320×480 portrait) attached as a USB CDC serial port.
//
// Every command is a 10-byte header:
//
//	XStartHi XStartLo XEndHi XEndLo YStartHi YStartLo YEndHi YEndLo Command Data
//
// with inclusive big-endian coordinates. A display command is followed by
// the RGB565 bytes of the addressed rectangle only, so the driver keeps the
// last frame it sent and transmits just the region that changed.
//
// The port is located by USB serial number through go.bug.st/serial's
// enumerator, unless a device path is pinned in Config.Port.
package serialpanel
