package display

import "errors"

var (
	// ErrExhaustedRetries is reported when the error budget is used up.
	// It ends the current session but never the process.
	ErrExhaustedRetries = errors.New("display: retries exhausted")

	// ErrNoActiveDevice is returned by Start when no screen is selected.
	ErrNoActiveDevice = errors.New("display: no active device")

	// ErrInvalidRotation is returned for angles other than 0, 90, 180, 270.
	ErrInvalidRotation = errors.New("display: invalid rotation")

	// errAborted ends the loop quietly once it was stopped or the
	// selection cleared.
	errAborted = errors.New("display: session ended")

	// errSwitched drops a frame rendered for a screen that is no longer
	// selected.
	errSwitched = errors.New("display: screen switched")

	// errNoFrame skips a cycle when the renderer has nothing new.
	errNoFrame = errors.New("display: no frame")
)
