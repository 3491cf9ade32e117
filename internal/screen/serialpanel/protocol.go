package serialpanel

import "encoding/binary"

// Command codes understood by the panel firmware.
const (
	CmdDisplay    byte = 0xC5 // 197: write the addressed rectangle
	CmdClear      byte = 0x66 // 102: fill the whole panel
	CmdBrightness byte = 0x6E // 110: backlight level 0-255
	CmdHandshake  byte = 0xC8 // 200: identify
)

const (
	// HeaderSize is the fixed length of every command header.
	HeaderSize = 10

	// clearAll in XStart addresses the whole panel for CmdClear.
	clearAll uint16 = 0xFFFF

	// handshakeUniqueID asks the panel for its 16-byte unique id.
	handshakeUniqueID byte = 3
	uniqueIDLength         = 16
)

// buildHeader encodes a command header. End coordinates are inclusive.
func buildHeader(cmd, data byte, xStart, xEnd, yStart, yEnd uint16) []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], xStart)
	binary.BigEndian.PutUint16(b[2:4], xEnd)
	binary.BigEndian.PutUint16(b[4:6], yStart)
	binary.BigEndian.PutUint16(b[6:8], yEnd)
	b[8] = cmd
	b[9] = data
	return b
}

func buildDisplay(x1, x2, y1, y2 int) []byte {
	return buildHeader(CmdDisplay, 0, uint16(x1), uint16(x2-1), uint16(y1), uint16(y2-1))
}

func buildClear() []byte {
	return buildHeader(CmdClear, 0xFF, clearAll, 0, 0, 0)
}

func buildBrightness(level byte) []byte {
	return buildHeader(CmdBrightness, level, 0, 0, 0, 0)
}

func buildHandshake() []byte {
	return buildHeader(CmdHandshake, handshakeUniqueID, 0, 0, 0, 0)
}

// nativeBrightness maps a clamped 0-100 percentage onto 0-255.
func nativeBrightness(percent int) byte {
	return byte(percent * 255 / 100)
}
