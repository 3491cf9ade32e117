package screen

import (
	"fmt"

	"github.com/nerrad567/lcdcanvas/internal/pixel"
)

// Alignment rules for partial updates.
const (
	// ColumnAlign is the panel's line-buffer granularity in pixels.
	ColumnAlign = 8

	// RowMargin rows are added above and below a change to hide partial
	// scan artifacts.
	RowMargin = 2
)

// Region is a half-open pixel rectangle [X1,X2)×[Y1,Y2).
type Region struct {
	X1, X2, Y1, Y2 int
}

// Full returns the region covering a w×h panel.
func Full(w, h int) Region {
	return Region{X1: 0, X2: w, Y1: 0, Y2: h}
}

// Width returns X2-X1.
func (r Region) Width() int { return r.X2 - r.X1 }

// Height returns Y2-Y1.
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Contains reports whether (x, y) lies inside r.
func (r Region) Contains(x, y int) bool {
	return x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", r.X1, r.X2, r.Y1, r.Y2)
}

// ChangedRegion computes the rectangle that must be retransmitted to turn
// previous into current.
//
// Returns:
//   - the full panel and true when previous is nil
//   - the full panel, true and an ErrProtocolMismatch when the frame sizes
//     differ; the error is a warning and the region is still valid
//   - false when the frames are identical
//   - otherwise the aligned bounding box of the differing pixels and true
func ChangedRegion(current, previous *pixel.Frame) (Region, bool, error) {
	w, h := current.Width, current.Height
	if previous == nil {
		return Full(w, h), true, nil
	}
	if len(previous.Pix) != len(current.Pix) || previous.Width != w {
		return Full(w, h), true, fmt.Errorf("%w: previous frame %d bytes, current %d bytes",
			ErrProtocolMismatch, len(previous.Pix), len(current.Pix))
	}

	minX, minY := w, h
	maxX, maxY := -1, -1

	cur, prev := current.Pix, previous.Pix
	for i := 0; i < len(cur); i += pixel.BytesPerPixel {
		if cur[i] == prev[i] && cur[i+1] == prev[i+1] {
			continue
		}
		idx := i / pixel.BytesPerPixel
		x, y := idx%w, idx/w
		minX = min(minX, x)
		maxX = max(maxX, x)
		minY = min(minY, y)
		maxY = max(maxY, y)
	}

	if maxX < 0 {
		return Region{}, false, nil
	}

	return Region{
		X1: minX / ColumnAlign * ColumnAlign,
		X2: min(w, (maxX/ColumnAlign+1)*ColumnAlign),
		Y1: max(0, minY-RowMargin),
		Y2: min(h, maxY+RowMargin+1),
	}, true, nil
}
