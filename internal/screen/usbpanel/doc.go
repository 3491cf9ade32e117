// Package usbpanel drives the WCH32 (AX206-compatible) 480×320 panel, a USB
// device (VID 0x1908, PID 0x0102) that speaks a vendor command set framed
// like USB mass-storage command blocks.
//
// Each operation writes a 31-byte command block to bulk endpoint 0x01,
// then the payload if there is one, then reads a 13-byte status from bulk
// endpoint 0x81. There is no partial update: every Display transmits the
// whole frame.
//
// The USB link is reached through google/gousb (libusb). Conn abstracts it
// so the protocol can be tested without hardware.
package usbpanel
