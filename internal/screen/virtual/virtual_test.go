package virtual

import (
	"image"
	"image/color"
	"testing"
)

func TestScreen_AlwaysAvailable(t *testing.T) {
	s := New(480, 320)

	if !s.Probe() || !s.IsOpen() {
		t.Error("virtual screen must always be attached and open")
	}
	s.Close()
	if !s.IsOpen() {
		t.Error("IsOpen() = false after Close()")
	}

	d := s.Descriptor()
	if d.Identity != ID || !d.Virtual || d.Width != 480 || d.Height != 320 {
		t.Errorf("Descriptor() = %+v", d)
	}
}

func TestScreen_DisplayAndSnapshot(t *testing.T) {
	s := New(480, 320)
	if s.Snapshot() != nil {
		t.Fatal("Snapshot() before Display() should be nil")
	}

	img := image.NewRGBA(image.Rect(0, 0, 320, 480))
	img.Set(5, 5, color.White)
	if err := s.Display(img); err != nil {
		t.Fatalf("Display() error = %v", err)
	}

	// Mutating the source must not affect the stored copy.
	img.Set(5, 5, color.Black)

	snap := s.Snapshot()
	if b := snap.Bounds(); b.Dx() != 320 || b.Dy() != 480 {
		t.Errorf("Snapshot() bounds = %v, want unscaled 320x480", b)
	}
	r, _, _, _ := snap.At(5, 5).RGBA()
	if r>>8 != 0xff {
		t.Errorf("Snapshot() pixel red = %d, want 255", r>>8)
	}

	frames, updated := s.Stats()
	if frames != 1 || updated.IsZero() {
		t.Errorf("Stats() = %d, %v", frames, updated)
	}

	s.Close()
	if s.Snapshot() != nil {
		t.Error("Snapshot() after Close() should be nil")
	}
}

func TestScreen_BrightnessDims(t *testing.T) {
	s := New(2, 2)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	_ = s.Display(img)
	_ = s.SetBrightness(-20)

	r, _, _, _ := s.Snapshot().At(0, 0).RGBA()
	if r != 0 {
		t.Errorf("red at brightness 0 = %d, want 0", r)
	}
}

func TestScreen_Clear(t *testing.T) {
	s := New(8, 4)
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if b := s.Snapshot().Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Errorf("Clear() bounds = %v", b)
	}
}
