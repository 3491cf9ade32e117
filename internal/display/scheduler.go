package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Logger is the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is a point-in-time copy of the scheduler state.
type Session struct {
	Active            *screen.Descriptor `json:"active,omitempty"`
	Brightness        int                `json:"brightness"`
	Rotation          int                `json:"rotation"`
	Running           bool               `json:"running"`
	State             string             `json:"state"`
	ConsecutiveErrors int                `json:"consecutive_errors"`
}

// run holds the per-loop signalling. wake is closed to cut sleeps short.
type run struct {
	wake   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (r *run) interrupt() {
	r.once.Do(func() {
		close(r.wake)
		r.cancel()
	})
}

// Scheduler drives the active screen.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Scheduler struct {
	cfg    Config
	logger Logger

	// mu is the device mutex. Everything below it is guarded by it.
	mu         sync.Mutex
	device     screen.Device
	brightness int
	rotation   int
	running    bool
	state      State
	errors     int
	run        *run
}

// NewScheduler creates an idle scheduler with no screen selected.
func NewScheduler(cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:        cfg,
		logger:     noopLogger{},
		brightness: 100,
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Select makes dev the active screen, closing the previous one first.
// Selecting the screen that is already active does nothing. A nil dev
// clears the selection. Returns whether a screen is active afterwards.
func (s *Scheduler) Select(dev screen.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		if dev != nil && s.device.Identity() == dev.Identity() {
			return true
		}
		s.device.Close()
		s.logger.Debug("screen released", "screen", s.device.Identity())
	}

	s.device = dev
	s.errors = 0
	if dev == nil {
		s.logger.Debug("screen selection cleared")
		return false
	}
	s.logger.Info("screen selected", "screen", dev.Identity())
	return true
}

// Active returns the descriptor of the selected screen.
func (s *Scheduler) Active() (screen.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return screen.Descriptor{}, false
	}
	return s.device.Descriptor(), true
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session.
func (s *Scheduler) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Session{
		Brightness:        s.brightness,
		Rotation:          s.rotation,
		Running:           s.running,
		State:             s.state.String(),
		ConsecutiveErrors: s.errors,
	}
	if s.device != nil {
		d := s.device.Descriptor()
		out.Active = &d
	}
	return out
}

// SetRotation sets the angle, counter-clockwise, applied to frames for
// physical screens.
func (s *Scheduler) SetRotation(degrees int) error {
	switch degrees {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	}

	s.mu.Lock()
	s.rotation = degrees
	s.mu.Unlock()
	return nil
}

// SetBrightness stores percent and applies it to the active screen.
//
// Each attempt runs under the device mutex: reopen if needed, then write.
// A failed attempt closes the device and waits RetryDelay, outside the
// mutex, before the next. After BrightnessAttempts failures OnFailure is
// called and an ErrExhaustedRetries error returned. With no screen
// selected the value is only stored.
func (s *Scheduler) SetBrightness(ctx context.Context, percent int) error {
	percent = screen.ClampBrightness(percent)

	s.mu.Lock()
	s.brightness = percent
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.BrightnessAttempts; attempt++ {
		id, ok, err := s.applyBrightness(percent)
		if !ok {
			s.logger.Debug("no screen selected, brightness stored", "brightness", percent)
			return nil
		}
		if err == nil {
			s.logger.Debug("brightness set", "screen", id, "brightness", percent)
			return nil
		}

		lastErr = err
		s.logger.Warn("setting brightness failed", "screen", id, "attempt", attempt, "error", err)

		if attempt < s.cfg.BrightnessAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}
	}

	err := fmt.Errorf("%w: brightness after %d attempts: %w", ErrExhaustedRetries, s.cfg.BrightnessAttempts, lastErr)
	s.notifyFailure(err)
	return err
}

// applyBrightness makes one locked attempt. ok is false when no screen is
// selected. A driver panic counts as a failed attempt.
func (s *Scheduler) applyBrightness(percent int) (id screen.Identity, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev := s.device
	if dev == nil {
		return "", false, nil
	}
	id = dev.Identity()

	err = guard(id, func() error {
		if !dev.IsOpen() {
			dev.Open()
		}
		return dev.SetBrightness(percent)
	})
	if err != nil {
		_ = guard(id, closeDevice(dev))
	}
	return id, true, err
}

// Start launches the display loop. It is a no-op while a loop is starting
// or running, and returns ErrNoActiveDevice when no screen is selected.
// A loop that has decided to exit is already stopping, so Start waits for
// it and launches a fresh one. The loop outlives ctx; use Stop to end it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	for s.state == StateStopping {
		done := s.run.done
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.state == StateStarting || s.state == StateRunning {
		return nil
	}
	if s.device == nil {
		return ErrNoActiveDevice
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		wake:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	s.run = r
	s.running = true
	s.errors = 0
	s.state = StateStarting

	go s.loop(loopCtx, r)

	s.logger.Info("display started", "screen", s.device.Identity())
	return nil
}

// Stop ends the loop and waits for it to exit, or for ctx to expire.
// Stopping an idle scheduler does nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.state = StateStopping
	r := s.run
	s.mu.Unlock()

	r.interrupt()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop drives whichever screen is selected at the top of each cycle, so
// selecting another screen moves the session instead of ending it. It
// exits when stopped, when the selection is cleared, or past ErrorLimit.
func (s *Scheduler) loop(ctx context.Context, r *run) {
	defer close(r.done)

	var (
		last    screen.Identity
		failure error
	)
	defer func() {
		r.interrupt()
		s.finish(r, last, failure)
	}()

	for {
		dev, ok := s.current(r)
		if !ok {
			return
		}
		last = dev.Identity()
		start := time.Now()

		err := guard(last, func() error { return s.cycle(ctx, r, dev) })
		elapsed := time.Since(start)

		switch {
		case errors.Is(err, errAborted):
			return
		case errors.Is(err, errSwitched):
			s.logger.Debug("screen changed during cycle, frame dropped", "screen", last)
			continue
		case errors.Is(err, errNoFrame):
			// Poll the renderer no faster than MinInterval.
			if elapsed < s.cfg.MinInterval && !sleep(r.wake, s.cfg.MinInterval-elapsed) {
				return
			}
			continue
		}

		if s.cfg.Recorder != nil {
			s.cfg.Recorder.RecordCycle(last, elapsed, err)
		}

		if err == nil {
			s.mu.Lock()
			s.errors = 0
			s.mu.Unlock()

			s.logger.Debug("frame displayed", "screen", last, "elapsed", elapsed)
			if s.cfg.OnFrame != nil {
				s.cfg.OnFrame(last, elapsed)
			}
			if !sleep(r.wake, s.cfg.pace(elapsed)) {
				return
			}
			continue
		}

		count, cerr := s.recordFailure(r, dev)
		switch {
		case errors.Is(cerr, errAborted):
			return
		case errors.Is(cerr, errSwitched):
			continue
		}
		if count > s.cfg.ErrorLimit {
			s.logger.Error("display error limit reached, stopping", "screen", last, "errors", count, "error", err)
			failure = fmt.Errorf("%w: %d consecutive display failures: %w", ErrExhaustedRetries, count, err)
			return
		}
		s.logger.Warn("display failed, retrying", "screen", last, "errors", count, "error", err)
		if !sleep(r.wake, s.cfg.RetryDelay) {
			return
		}
	}
}

// cycle runs one reopen-render-rotate-display pass on dev.
func (s *Scheduler) cycle(ctx context.Context, r *run, dev screen.Device) error {
	if !dev.IsOpen() {
		err := s.locked(r, dev, func() error {
			dev.Close()
			dev.Open()
			if !dev.IsOpen() {
				return fmt.Errorf("%w: reopening %s failed", screen.ErrTransport, dev.Identity())
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	img, err := s.cfg.Renderer.NextFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errAborted
		}
		return fmt.Errorf("rendering frame: %w", err)
	}
	if img == nil {
		return errNoFrame
	}

	s.mu.Lock()
	rotation := s.rotation
	s.mu.Unlock()
	if !dev.Descriptor().Virtual {
		img = rotate(img, rotation)
	}

	return s.locked(r, dev, func() error { return dev.Display(img) })
}

// locked runs fn under mu if the loop for r still drives dev.
func (s *Scheduler) locked(r *run, dev screen.Device, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(r, dev); err != nil {
		return err
	}
	return fn()
}

// recordFailure closes dev and bumps the error count. Going past
// ErrorLimit retires the run.
func (s *Scheduler) recordFailure(r *run, dev screen.Device) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(r, dev); err != nil {
		return 0, err
	}
	_ = guard(dev.Identity(), closeDevice(dev))
	s.errors++
	if s.errors > s.cfg.ErrorLimit {
		s.retire(r)
	}
	return s.errors, nil
}

// current returns the screen to drive this cycle. ok is false once the run
// is over.
func (s *Scheduler) current(r *run) (screen.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.check(r, nil) != nil {
		return nil, false
	}
	s.state = StateRunning
	return s.device, true
}

// check reports whether the loop for r may keep driving dev: errAborted
// ends the loop, errSwitched drops the current frame. A nil dev accepts
// any selected screen. Callers hold mu.
func (s *Scheduler) check(r *run, dev screen.Device) error {
	if s.run != r || !s.running || s.device == nil {
		s.retire(r)
		return errAborted
	}
	if dev != nil && s.device.Identity() != dev.Identity() {
		return errSwitched
	}
	return nil
}

// retire marks r as exiting, so Start waits for it instead of treating it
// as live. Callers hold mu.
func (s *Scheduler) retire(r *run) {
	if s.run != r {
		return
	}
	s.running = false
	if s.state != StateIdle {
		s.state = StateStopping
	}
}

// finish is the single exit path of the loop. It only touches state that
// still belongs to r.
func (s *Scheduler) finish(r *run, last screen.Identity, failure error) {
	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	s.running = false
	id := last
	if dev := s.device; dev != nil {
		id = dev.Identity()
		_ = guard(id, func() error {
			if dev.IsOpen() {
				dev.Close()
			}
			return nil
		})
	}
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("display stopped", "screen", id)

	if failure != nil {
		s.notifyFailure(failure)
	}
	if s.cfg.OnStopped != nil {
		s.cfg.OnStopped(id)
	}
}

func (s *Scheduler) notifyFailure(err error) {
	if s.cfg.OnFailure != nil {
		s.cfg.OnFailure(err)
	}
}

// guard runs fn, turning a driver panic into a transport error.
func guard(id screen.Identity, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s panicked: %v", screen.ErrTransport, id, p)
		}
	}()
	return fn()
}

func closeDevice(dev screen.Device) func() error {
	return func() error {
		dev.Close()
		return nil
	}
}

// sleep waits for d or until wake is closed. It returns false if woken.
func sleep(wake <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-wake:
		return false
	case <-t.C:
		return true
	}
}

// rotate turns img counter-clockwise, swapping the canvas dimensions for
// quarter turns.
func rotate(img image.Image, degrees int) image.Image {
	switch degrees {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}
