package device

import "errors"

var (
	// ErrDeviceNotFound means no screen from the last scan has the
	// identity. The panel may have been unplugged since.
	ErrDeviceNotFound = errors.New("device: no screen with that identity")

	// ErrDuplicateIdentity means two drivers report the same identity in
	// one scan.
	ErrDuplicateIdentity = errors.New("device: identity reported twice")
)
