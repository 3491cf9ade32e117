package screen

import (
	"image"

	"github.com/disintegration/imaging"
)

// Fit returns img scaled to w×h, or img itself when it already matches.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
