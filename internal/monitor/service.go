package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/screen"
	"github.com/nerrad567/lcdcanvas/internal/settings"
)

// Logger is the logging interface used by the service.
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

// Registry is satisfied by *device.Registry.
type Registry interface {
	Enumerate() map[screen.Identity]screen.Device
	Lookup(id screen.Identity) (screen.Device, error)
	Descriptors() []screen.Descriptor
}

// Config configures a Service.
type Config struct {
	// Display is passed to the scheduler. Its callbacks are kept and
	// called before the service's own handling.
	Display display.Config

	// Autostart starts the display loop in Restore when a last screen
	// could be reselected.
	Autostart bool
}

// Service is the single entry point for controlling the display.
type Service struct {
	registry  Registry
	store     settings.Store
	scheduler *display.Scheduler
	cfg       Config
	notify    fanout
	logger    Logger

	// mu serializes control operations.
	mu sync.Mutex
}

// New creates a Service and its scheduler.
func New(registry Registry, store settings.Store, cfg Config) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   noopLogger{},
	}

	dc := cfg.Display
	onStopped, onFailure, onFrame := dc.OnStopped, dc.OnFailure, dc.OnFrame
	dc.OnStopped = func(id screen.Identity) {
		if onStopped != nil {
			onStopped(id)
		}
		s.emit(EventDisplayStopped, id, "")
	}
	dc.OnFailure = func(err error) {
		if onFailure != nil {
			onFailure(err)
		}
		id, _ := s.scheduler.Active()
		s.emit(EventDisplayFailure, id.Identity, err.Error())
	}
	dc.OnFrame = func(id screen.Identity, elapsed time.Duration) {
		if onFrame != nil {
			onFrame(id, elapsed)
		}
		s.emit(EventDisplayFrame, id, "")
	}
	s.scheduler = display.NewScheduler(dc)
	return s
}

// SetLogger sets the logger for the service and its scheduler.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
	s.scheduler.SetLogger(logger)
}

// AddNotifier registers n for all future events.
func (s *Service) AddNotifier(n Notifier) {
	s.notify.add(n)
}

func (s *Service) emit(kind string, id screen.Identity, msg string) {
	s.notify.Notify(Event{
		Type:      kind,
		Screen:    id,
		Message:   msg,
		Session:   s.scheduler.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
}

// LoadScreens rescans for attached screens.
func (s *Service) LoadScreens() []screen.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Enumerate()
	return s.registry.Descriptors()
}

// Screens returns the screens found by the last scan.
func (s *Service) Screens() []screen.Descriptor {
	return s.registry.Descriptors()
}

// SelectScreen makes id the active screen and applies its saved settings.
// An empty id clears the selection. It returns whether a screen is active.
//
// An unknown id is an error and leaves the selection unchanged. Failing to
// apply brightness after all retries is reported through the failure
// event and does not undo the selection.
func (s *Service) SelectScreen(ctx context.Context, id screen.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.scheduler.Select(nil)
		s.rememberLastScreen(ctx, "")
		s.emit(EventScreenSelected, "", "")
		return false, nil
	}

	dev, err := s.registry.Lookup(id)
	if err != nil {
		return false, err
	}

	active, hadActive := s.scheduler.Active()
	s.scheduler.Select(dev)
	if !hadActive || active.Identity != id {
		if err := s.applyScreenSettings(ctx, id); err != nil {
			s.logger.Warn("applying screen settings failed", "screen", id, "error", err)
		}
	}

	s.rememberLastScreen(ctx, id)
	s.emit(EventScreenSelected, id, "")
	return true, nil
}

// applyScreenSettings pushes the saved rotation and brightness of id to
// the scheduler. Callers hold mu.
func (s *Service) applyScreenSettings(ctx context.Context, id screen.Identity) error {
	saved, err := s.store.Screen(ctx, string(id))
	if err != nil {
		saved = settings.DefaultScreen()
		s.logger.Warn("loading screen settings failed, using defaults", "screen", id, "error", err)
	}
	if err := s.scheduler.SetRotation(saved.Rotation); err != nil {
		return err
	}
	return s.scheduler.SetBrightness(ctx, saved.Brightness)
}

func (s *Service) rememberLastScreen(ctx context.Context, id screen.Identity) {
	if err := s.store.SaveMonitor(ctx, map[string]string{settings.KeyLastScreen: string(id)}); err != nil {
		s.logger.Warn("saving last screen failed", "error", err)
	}
}

// ScreenSettings returns the persisted settings of id.
func (s *Service) ScreenSettings(ctx context.Context, id screen.Identity) (settings.Screen, error) {
	return s.store.Screen(ctx, string(id))
}

// SetScreenSettings persists v for id. When id is the active screen the
// new rotation and brightness take effect straight away.
func (s *Service) SetScreenSettings(ctx context.Context, id screen.Identity, v settings.Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveScreen(ctx, string(id), v); err != nil {
		return err
	}

	if active, ok := s.scheduler.Active(); ok && active.Identity == id {
		if err := s.scheduler.SetRotation(v.Rotation); err != nil {
			return err
		}
		if err := s.scheduler.SetBrightness(ctx, v.Brightness); err != nil {
			return fmt.Errorf("settings saved but not applied: %w", err)
		}
	}

	s.emit(EventSettingsChanged, id, "")
	return nil
}

// MonitorSettings returns the persisted application settings.
func (s *Service) MonitorSettings(ctx context.Context) (map[string]string, error) {
	return s.store.Monitor(ctx)
}

// SetMonitorSettings merges values into the application settings.
func (s *Service) SetMonitorSettings(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := values[settings.KeyStartup]; ok {
		if _, err := strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%w: %s must be true or false", settings.ErrInvalidSettings, settings.KeyStartup)
		}
	}
	if err := s.store.SaveMonitor(ctx, values); err != nil {
		return err
	}
	s.emit(EventSettingsChanged, "", "")
	return nil
}

// ToggleDisplay starts or stops the display loop.
func (s *Service) ToggleDisplay(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !on {
		return s.scheduler.Stop(ctx)
	}
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	id, _ := s.scheduler.Active()
	s.emit(EventDisplayStarted, id.Identity, "")
	return nil
}

// SetBrightness changes the brightness of the active screen and saves it.
func (s *Service) SetBrightness(ctx context.Context, percent int) error {
	return s.patchActive(ctx, func(v *settings.Screen) { v.Brightness = screen.ClampBrightness(percent) })
}

// SetRotation changes the rotation of the active screen and saves it.
func (s *Service) SetRotation(ctx context.Context, degrees int) error {
	switch degrees {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: %d", display.ErrInvalidRotation, degrees)
	}
	return s.patchActive(ctx, func(v *settings.Screen) { v.Rotation = degrees })
}

func (s *Service) patchActive(ctx context.Context, patch func(*settings.Screen)) error {
	active, ok := s.scheduler.Active()
	if !ok {
		return display.ErrNoActiveDevice
	}
	v, err := s.store.Screen(ctx, string(active.Identity))
	if err != nil {
		return err
	}
	patch(&v)
	return s.SetScreenSettings(ctx, active.Identity, v)
}

// DisplayState returns the current session.
func (s *Service) DisplayState() display.Session {
	return s.scheduler.Snapshot()
}

// Restore reselects the last used screen and, when configured, starts the
// display. A last screen that is no longer attached is logged and
// skipped.
func (s *Service) Restore(ctx context.Context) error {
	s.LoadScreens()

	values, err := s.store.Monitor(ctx)
	if err != nil {
		return fmt.Errorf("loading monitor settings: %w", err)
	}
	last := screen.Identity(values[settings.KeyLastScreen])
	if last == "" {
		return nil
	}

	ok, err := s.SelectScreen(ctx, last)
	if err != nil {
		s.logger.Warn("last screen unavailable", "screen", last, "error", err)
		return nil
	}
	if !ok || !s.cfg.Autostart {
		return nil
	}
	if err := s.ToggleDisplay(ctx, true); err != nil && !errors.Is(err, display.ErrNoActiveDevice) {
		return err
	}
	return nil
}

// Shutdown stops the display loop and releases the active screen.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.scheduler.Stop(ctx)
	s.scheduler.Select(nil)
	return err
}
