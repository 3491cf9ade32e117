package render

import (
	"context"
	"image"
	"image/color"
	"math/rand/v2"
	"time"

	"github.com/disintegration/imaging"
)

// Pattern generates a moving test image: a colour gradient with a band of
// noise that sweeps down the panel. It needs no producer and is used for
// demo mode and for checking a new panel end to end.
type Pattern struct {
	Width, Height int

	// Now is replaceable for tests.
	Now func() time.Time
}

// NewPattern creates a pattern renderer for a w×h panel.
func NewPattern(w, h int) *Pattern {
	return &Pattern{Width: w, Height: h, Now: time.Now}
}

// NextFrame implements the display renderer contract.
func (p *Pattern) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := p.Now()
	phase := now.UnixMilli() / 100
	img := imaging.New(p.Width, p.Height, color.Black)

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(1, p.Width-1)),
				G: uint8(y * 255 / max(1, p.Height-1)),
				B: uint8(phase * 8),
				A: 0xff,
			})
		}
	}

	band := int(phase) % max(1, p.Height)
	rng := rand.New(rand.NewPCG(uint64(now.UnixNano()), 0))
	for y := band; y < min(p.Height, band+p.Height/16+1); y++ {
		for x := 0; x < p.Width; x++ {
			v := uint8(rng.IntN(256))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 0xff})
		}
	}
	return img, nil
}
