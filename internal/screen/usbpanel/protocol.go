package usbpanel

import "encoding/binary"

const (
	// BlockSize is the fixed command block length.
	BlockSize = 31

	// AckSize is the length of the status read after every command.
	AckSize = 13

	// maxParams is what fits after the command byte.
	maxParams = BlockSize - 22
)

// Direction flags.
const (
	DirOut byte = 0x06
	DirIn  byte = 0x02
)

// Vendor commands.
const (
	CmdIdentify   byte = 0x00
	CmdBrightness byte = 0x01
	CmdDisplay    byte = 0x12
)

var (
	blockMagic = [4]byte{0x55, 0x53, 0x42, 0x43}
	blockTag   = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
)

const (
	vendorOpcode   byte = 0xCD
	cbLength       byte = 0x10
	identifyLength      = 5
	brightnessMax       = 7
)

// buildBlock assembles a command block. Params beyond the block are dropped.
func buildBlock(length uint32, dir, cmd byte, params ...byte) []byte {
	b := make([]byte, BlockSize)
	copy(b[0:4], blockMagic[:])
	copy(b[4:8], blockTag[:])
	binary.LittleEndian.PutUint32(b[8:12], length)
	// b[12] flags, b[13] LUN: zero.
	b[14] = cbLength
	b[15] = vendorOpcode
	// b[16:20] zero.
	b[20] = dir
	b[21] = cmd
	copy(b[22:], params[:min(len(params), maxParams)])
	return b
}

// buildDisplay addresses the rectangle [x0,x1)×[y0,y1). The firmware takes
// inclusive end coordinates.
func buildDisplay(x0, y0, x1, y1 int) []byte {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint16(p[0:2], uint16(x0))
	binary.LittleEndian.PutUint16(p[2:4], uint16(y0))
	binary.LittleEndian.PutUint16(p[4:6], uint16(x1-1))
	binary.LittleEndian.PutUint16(p[6:8], uint16(y1-1))
	length := uint32((x1 - x0) * (y1 - y0) * 2)
	return buildBlock(length, DirOut, CmdDisplay, p...)
}

func buildBrightness(level byte) []byte {
	return buildBlock(0, DirOut, CmdBrightness, 0x01, 0x00, level)
}

func buildIdentify() []byte {
	return buildBlock(identifyLength, DirIn, CmdIdentify)
}

// nativeBrightness maps a clamped 0-100 percentage onto 0-7.
func nativeBrightness(percent int) byte {
	return byte(percent * brightnessMax / 100)
}
