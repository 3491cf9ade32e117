package screen

import (
	"errors"
	"testing"

	"github.com/nerrad567/lcdcanvas/internal/pixel"
)

func blank(w, h int) *pixel.Frame {
	return &pixel.Frame{Width: w, Height: h, Pix: make([]byte, w*h*2)}
}

func withPixel(f *pixel.Frame, x, y int) *pixel.Frame {
	out := &pixel.Frame{Width: f.Width, Height: f.Height, Pix: append([]byte(nil), f.Pix...)}
	i := (y*f.Width + x) * 2
	out.Pix[i] = 0xFF
	out.Pix[i+1] = 0xFF
	return out
}

func TestChangedRegion_NoPrevious(t *testing.T) {
	cur := blank(480, 320)

	r, changed, err := ChangedRegion(cur, nil)
	if err != nil {
		t.Fatalf("ChangedRegion() error = %v", err)
	}
	if !changed || r != Full(480, 320) {
		t.Errorf("ChangedRegion() = %v, %v, want full panel", r, changed)
	}
}

func TestChangedRegion_LengthMismatchIsFullReset(t *testing.T) {
	cur := blank(480, 320)
	prev := blank(320, 480)
	prev.Pix = prev.Pix[:100]

	r, changed, err := ChangedRegion(cur, prev)
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Errorf("error = %v, want ErrProtocolMismatch", err)
	}
	if !changed || r != (Region{0, 480, 0, 320}) {
		t.Errorf("ChangedRegion() = %v, %v, want full panel", r, changed)
	}
}

func TestChangedRegion_IdenticalFrames(t *testing.T) {
	a := withPixel(blank(64, 32), 10, 10)
	b := withPixel(blank(64, 32), 10, 10)

	_, changed, err := ChangedRegion(a, b)
	if err != nil {
		t.Fatalf("ChangedRegion() error = %v", err)
	}
	if changed {
		t.Error("identical frames reported as changed")
	}

	// Second call with the same pair is still no change.
	if _, changed, _ := ChangedRegion(a, a); changed {
		t.Error("repeat comparison reported as changed")
	}
}

func TestChangedRegion_SinglePixelScenario(t *testing.T) {
	prev := blank(480, 320)
	cur := withPixel(prev, 100, 50)

	r, changed, err := ChangedRegion(cur, prev)
	if err != nil {
		t.Fatalf("ChangedRegion() error = %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}

	want := Region{X1: 96, X2: 104, Y1: 48, Y2: 53}
	if r != want {
		t.Errorf("ChangedRegion() = %v, want %v", r, want)
	}
	if r.X1 < 96 || r.X2 > 112 || r.Y1 < 46 || r.Y2 > 55 {
		t.Errorf("region %v outside x∈[96,112], y∈[46,55]", r)
	}
}

func TestChangedRegion_Alignment(t *testing.T) {
	const w, h = 480, 320
	base := blank(w, h)

	points := []struct{ x, y int }{
		{0, 0}, {7, 1}, {8, 2}, {15, 100}, {16, 160},
		{100, 50}, {471, 317}, {472, 318}, {479, 319},
	}

	for _, p := range points {
		r, changed, err := ChangedRegion(withPixel(base, p.x, p.y), base)
		if err != nil || !changed {
			t.Fatalf("(%d,%d): changed=%v err=%v", p.x, p.y, changed, err)
		}
		if !r.Contains(p.x, p.y) {
			t.Errorf("(%d,%d): region %v does not contain pixel", p.x, p.y, r)
		}
		if r.X1%ColumnAlign != 0 {
			t.Errorf("(%d,%d): X1=%d not aligned", p.x, p.y, r.X1)
		}
		if r.X2%ColumnAlign != 0 && r.X2 != w {
			t.Errorf("(%d,%d): X2=%d not aligned", p.x, p.y, r.X2)
		}
		if r.Y1 > max(0, p.y-2) {
			t.Errorf("(%d,%d): Y1=%d, want <= %d", p.x, p.y, r.Y1, p.y-2)
		}
		if r.Y2 < min(h, p.y+3) {
			t.Errorf("(%d,%d): Y2=%d, want >= %d", p.x, p.y, r.Y2, p.y+3)
		}
		if r.X2 > w || r.Y2 > h || r.X1 < 0 || r.Y1 < 0 {
			t.Errorf("(%d,%d): region %v outside panel", p.x, p.y, r)
		}
	}
}

func TestChangedRegion_BoundingBox(t *testing.T) {
	base := blank(64, 64)
	cur := withPixel(withPixel(base, 3, 20), 40, 30)

	r, _, err := ChangedRegion(cur, base)
	if err != nil {
		t.Fatalf("ChangedRegion() error = %v", err)
	}
	want := Region{X1: 0, X2: 48, Y1: 18, Y2: 33}
	if r != want {
		t.Errorf("ChangedRegion() = %v, want %v", r, want)
	}
}

func TestClampBrightness(t *testing.T) {
	tests := []struct{ in, want int }{
		{-10, 0}, {0, 0}, {55, 55}, {100, 100}, {150, 100},
	}
	for _, tt := range tests {
		if got := ClampBrightness(tt.in); got != tt.want {
			t.Errorf("ClampBrightness(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
