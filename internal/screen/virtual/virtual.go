// Package virtual provides the software screen: a sink with no transport
// that keeps the last image it was given so it can be previewed over HTTP.
// It is always attached and always open.
package virtual

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// ID is the fixed identity of the software screen.
const ID screen.Identity = "VirtualScreen"

var _ screen.Device = (*Screen)(nil)

// Screen is the software sink.
type Screen struct {
	width, height int

	mu         sync.RWMutex
	last       *image.NRGBA
	brightness int
	updated    time.Time
	frames     uint64
}

// New creates a software screen advertising the given size. The size is
// only a hint for renderers; Display keeps images at whatever size they
// arrive.
func New(width, height int) *Screen {
	return &Screen{width: width, height: height, brightness: 100}
}

func (s *Screen) Identity() screen.Identity { return ID }

func (s *Screen) Descriptor() screen.Descriptor {
	return screen.Descriptor{Identity: ID, Width: s.width, Height: s.height, Virtual: true}
}

func (s *Screen) String() string { return "Virtual screen" }

func (s *Screen) Probe() bool { return true }

func (s *Screen) Open() {}

func (s *Screen) IsOpen() bool { return true }

// Close hides the preview.
func (s *Screen) Close() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

func (s *Screen) Write([]byte) error { return nil }

func (s *Screen) Read(int) ([]byte, error) { return nil, nil }

func (s *Screen) Handshake() ([]byte, error) { return nil, nil }

// SetBrightness only affects Snapshot.
func (s *Screen) SetBrightness(percent int) error {
	s.mu.Lock()
	s.brightness = screen.ClampBrightness(percent)
	s.mu.Unlock()
	return nil
}

// Display stores a copy of img.
func (s *Screen) Display(img image.Image) error {
	cp := imaging.Clone(img)

	s.mu.Lock()
	s.last = cp
	s.updated = time.Now()
	s.frames++
	s.mu.Unlock()
	return nil
}

// Clear replaces the preview with a blank frame.
func (s *Screen) Clear() error {
	s.mu.Lock()
	s.last = imaging.New(s.width, s.height, color.Black)
	s.updated = time.Now()
	s.mu.Unlock()
	return nil
}

// Snapshot returns the last displayed image with brightness applied, or
// nil when nothing is showing.
func (s *Screen) Snapshot() image.Image {
	s.mu.RLock()
	last, brightness := s.last, s.brightness
	s.mu.RUnlock()

	if last == nil {
		return nil
	}
	if brightness >= 100 {
		return last
	}
	// AdjustBrightness takes -100..100; dim towards black.
	return imaging.AdjustBrightness(last, float64(brightness-100))
}

// Stats reports how many frames were received and when the last arrived.
func (s *Screen) Stats() (frames uint64, updated time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames, s.updated
}
