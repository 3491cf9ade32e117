package pixel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// BytesPerPixel is the size of one encoded RGB565 word.
const BytesPerPixel = 2

// ErrBounds is returned when a rectangle does not fit inside a frame.
var ErrBounds = errors.New("pixel: rectangle out of bounds")

// Frame is an encoded panel image. Pix holds Width*Height words, row-major,
// high byte first. A Frame is treated as immutable once built.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Len returns the number of pixels in the frame.
func (f *Frame) Len() int {
	return f.Width * f.Height
}

// Word returns the packed RGB565 value of pixel i.
func (f *Frame) Word(i int) uint16 {
	return uint16(f.Pix[i*2])<<8 | uint16(f.Pix[i*2+1])
}

// At returns the packed RGB565 value at (x, y).
func (f *Frame) At(x, y int) uint16 {
	return f.Word(y*f.Width + x)
}

// Extract copies the half-open rectangle [x1,x2)×[y1,y2) out of the frame.
// Rows are concatenated, (x2-x1)*2 bytes each.
func (f *Frame) Extract(x1, x2, y1, y2 int) ([]byte, error) {
	if x1 < 0 || y1 < 0 || x2 > f.Width || y2 > f.Height || x1 > x2 || y1 > y2 {
		return nil, fmt.Errorf("%w: [%d,%d)x[%d,%d) in %dx%d", ErrBounds, x1, x2, y1, y2, f.Width, f.Height)
	}

	rowBytes := (x2 - x1) * BytesPerPixel
	out := make([]byte, 0, rowBytes*(y2-y1))
	for y := y1; y < y2; y++ {
		start := (y*f.Width + x1) * BytesPerPixel
		out = append(out, f.Pix[start:start+rowBytes]...)
	}
	return out, nil
}

// Image decodes the frame back into an RGBA image. The low bits dropped by
// packing are filled by bit replication.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := Unpack565(f.At(x, y))
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}
