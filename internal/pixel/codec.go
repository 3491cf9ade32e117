package pixel

import (
	"image"
	"image/color"
)

// Pack565 packs 8-bit channels into one RGB565 word.
func Pack565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Unpack565 expands an RGB565 word back to 8-bit channels.
func Unpack565(w uint16) (r, g, b uint8) {
	r5 := uint8(w >> 11 & 0x1f)
	g6 := uint8(w >> 5 & 0x3f)
	b5 := uint8(w & 0x1f)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// Encode converts img to a Frame. Alpha is discarded: each pixel is taken
// as its non-premultiplied colour.
func Encode(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*BytesPerPixel)

	i := 0
	switch src := img.(type) {
	case *image.RGBA:
		// Fast path for the renderer's usual output.
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+w*4]
			for x := 0; x < w*4; x += 4 {
				c := color.NRGBAModel.Convert(color.RGBA{row[x], row[x+1], row[x+2], row[x+3]}).(color.NRGBA)
				putWord(pix[i:], Pack565(c.R, c.G, c.B))
				i += BytesPerPixel
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				putWord(pix[i:], Pack565(c.R, c.G, c.B))
				i += BytesPerPixel
			}
		}
	}

	return &Frame{Width: w, Height: h, Pix: pix}
}

// Solid returns a w×h frame filled with one colour.
func Solid(w, h int, c color.Color) *Frame {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	word := Pack565(n.R, n.G, n.B)
	pix := make([]byte, w*h*BytesPerPixel)
	for i := 0; i < len(pix); i += BytesPerPixel {
		putWord(pix[i:], word)
	}
	return &Frame{Width: w, Height: h, Pix: pix}
}

func putWord(b []byte, w uint16) {
	b[0] = byte(w >> 8)
	b[1] = byte(w)
}
