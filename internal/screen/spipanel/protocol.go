package spipanel

import "github.com/nerrad567/lcdcanvas/internal/screen"

// MIPI DCS commands used by the driver.
const (
	cmdSoftReset     = 0x01
	cmdReadID        = 0x04
	cmdSleepOut      = 0x11
	cmdNormalOn      = 0x13
	cmdInvertOn      = 0x21
	cmdDisplayOff    = 0x28
	cmdDisplayOn     = 0x29
	cmdColumnAddress = 0x2a
	cmdRowAddress    = 0x2b
	cmdMemoryWrite   = 0x2c
	cmdMemoryAccess  = 0x36
	cmdPixelFormat   = 0x3a
	cmdBrightness    = 0x51
	cmdControl       = 0x53
)

const (
	// pixelFormat16 selects 16 bits per pixel on both interfaces.
	pixelFormat16 = 0x55

	// controlBacklight enables the brightness register and dimming.
	controlBacklight = 0x2c

	// idLength is the number of bytes RDDID returns.
	idLength = 3
)

// addressArgs encodes an inclusive [lo, hi] address pair.
func addressArgs(lo, hi int) []byte {
	return []byte{byte(lo >> 8), byte(lo), byte(hi >> 8), byte(hi)}
}

// window returns the commands that address r (half-open) for a RAMWR.
func window(r screen.Region) [][]byte {
	return [][]byte{
		append([]byte{cmdColumnAddress}, addressArgs(r.X1, r.X2-1)...),
		append([]byte{cmdRowAddress}, addressArgs(r.Y1, r.Y2-1)...),
		{cmdMemoryWrite},
	}
}

// nativeBrightness maps 0-100 onto the 0-255 DCS brightness register.
func nativeBrightness(percent int) byte {
	return byte(percent * 255 / 100)
}
