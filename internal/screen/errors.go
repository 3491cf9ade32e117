package screen

import "errors"

// Domain errors for panel drivers.
var (
	// ErrTransport indicates an open, write, or read failure on the
	// underlying transport.
	ErrTransport = errors.New("screen: transport error")

	// ErrProtocolMismatch indicates inconsistent frame or resolution sizes.
	ErrProtocolMismatch = errors.New("screen: protocol mismatch")

	// ErrNotOpen indicates an operation that needs an open handle.
	ErrNotOpen = errors.New("screen: device not open")
)
