package render

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("render: empty image")

// Decode reads a PNG, JPEG, GIF, BMP or TIFF image. EXIF orientation is
// honoured for JPEGs.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
