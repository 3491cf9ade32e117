package render

import (
	"context"
	"image"
	"sync"
	"time"
)

// DefaultWait bounds how long NextFrame blocks before the first frame.
const DefaultWait = time.Second

// Slot holds the most recent frame.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Slot struct {
	wait time.Duration

	mu      sync.Mutex
	img     image.Image
	seq     uint64
	updated time.Time
	ready   chan struct{} // closed on first Put
}

// NewSlot creates an empty slot. wait bounds NextFrame while empty.
func NewSlot(wait time.Duration) *Slot {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Slot{wait: wait, ready: make(chan struct{})}
}

// Put replaces the current frame. A nil image is ignored.
func (s *Slot) Put(img image.Image) {
	if img == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.img == nil
	s.img = img
	s.seq++
	s.updated = time.Now()
	if first {
		close(s.ready)
	}
}

// NextFrame returns the current frame. While the slot is empty it waits up
// to the configured bound and returns nil if nothing arrived.
func (s *Slot) NextFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	img, ready := s.img, s.ready
	s.mu.Unlock()
	if img != nil {
		return img, nil
	}

	t := time.NewTimer(s.wait)
	defer t.Stop()
	select {
	case <-ready:
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, nil
}

// Latest returns the current frame, its sequence number and arrival time
// without waiting.
func (s *Slot) Latest() (image.Image, uint64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, s.seq, s.updated
}
