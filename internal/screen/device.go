package screen

import (
	"fmt"
	"image"
)

// Identity is a transport-stable name for a panel: the USB serial number for
// physical devices, a fixed constant for the virtual sink.
type Identity string

// Descriptor is a read-only snapshot of a panel's capabilities.
type Descriptor struct {
	Identity Identity `json:"id"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`

	// Virtual marks a software sink with no physical transport. The display
	// loop sends it unrotated images.
	Virtual bool `json:"virtual"`
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%dx%d)", d.Identity, d.Width, d.Height)
}

// Device is the capability set every panel driver implements.
//
// Open is best effort: a failure leaves the device closed and is only
// observable through IsOpen. Close clears the panel before releasing the
// handle and always leaves the device closed. Write attempts Open first
// when the handle is closed.
type Device interface {
	// Identity is available without an open connection.
	Identity() Identity
	Descriptor() Descriptor

	// Probe reports whether the device is attached. It never opens it.
	Probe() bool

	Open()
	IsOpen() bool
	Close()

	Write(p []byte) error
	Read(n int) ([]byte, error)
	Handshake() ([]byte, error)

	// Display resizes img to the native resolution if needed, then
	// transmits it. Sending nothing because nothing changed is success.
	Display(img image.Image) error
	Clear() error
	SetBrightness(percent int) error

	String() string
}

// ClampBrightness limits percent to [0, 100].
func ClampBrightness(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
