package spipanel

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/pixel"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Defaults for a 2" 240×320 ST7789 module.
const (
	DefaultName    = "SPI-ST7789"
	DefaultWidth   = 240
	DefaultHeight  = 320
	DefaultSpeedHz = 40_000_000
)

// Controller timings after reset and sleep-out.
const (
	resetDelay    = 150 * time.Millisecond
	sleepOutDelay = 120 * time.Millisecond
)

// Logger is the logging interface used by the driver.
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

// Config holds the SPI panel settings.
type Config struct {
	// Name is the panel identity. SPI has no serial number to read.
	Name string

	// Bus is the periph.io SPI port name. Empty picks the first port.
	Bus string

	// DC is the data/command pin and is required. Reset and Backlight are
	// optional.
	DC        string
	Reset     string
	Backlight string

	Width   int
	Height  int
	SpeedHz int64
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.SpeedHz == 0 {
		c.SpeedHz = DefaultSpeedHz
	}
}

// Option configures a Panel.
type Option func(*Panel)

// WithLogger sets the driver logger.
func WithLogger(l Logger) Option {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithBus replaces the periph.io bus, mainly for tests.
func WithBus(open OpenFunc, probe ProbeFunc) Option {
	return func(p *Panel) {
		p.open = open
		p.probe = probe
	}
}

var _ screen.Device = (*Panel)(nil)

// Panel is the SPI partial-update driver.
type Panel struct {
	cfg    Config
	open   OpenFunc
	probe  ProbeFunc
	sleep  func(time.Duration)
	logger Logger

	mu       sync.Mutex
	bus      Bus
	previous *pixel.Frame
}

// New creates an SPI panel driver. It does not touch the bus.
func New(cfg Config, opts ...Option) *Panel {
	cfg.applyDefaults()
	p := &Panel{
		cfg:    cfg,
		open:   openPeriph,
		probe:  probePeriph,
		sleep:  time.Sleep,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identity returns the configured name.
func (p *Panel) Identity() screen.Identity {
	return screen.Identity(p.cfg.Name)
}

// Descriptor returns the panel capabilities.
func (p *Panel) Descriptor() screen.Descriptor {
	return screen.Descriptor{Identity: p.Identity(), Width: p.cfg.Width, Height: p.cfg.Height}
}

func (p *Panel) String() string {
	return fmt.Sprintf("SPI panel %s on %s", p.cfg.Name, p.busName())
}

func (p *Panel) busName() string {
	if p.cfg.Bus == "" {
		return "default bus"
	}
	return p.cfg.Bus
}

// Probe reports whether the bus and D/C pin exist.
func (p *Panel) Probe() bool {
	return p.probe(p.cfg)
}

// Open acquires the bus and runs the controller init sequence. Failures
// are logged and leave the panel closed.
func (p *Panel) Open() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openLocked()
}

func (p *Panel) openLocked() {
	if p.bus != nil {
		return
	}

	bus, err := p.open(p.cfg)
	if err != nil {
		p.logger.Error("opening SPI panel", "bus", p.busName(), "error", err)
		return
	}
	if err := p.initController(bus); err != nil {
		p.logger.Error("initialising SPI panel", "bus", p.busName(), "error", err)
		if closeErr := bus.Close(); closeErr != nil {
			p.logger.Warn("closing SPI bus", "error", closeErr)
		}
		return
	}

	p.bus = bus
	p.logger.Info("SPI panel opened", "bus", p.busName())
}

func (p *Panel) initController(bus Bus) error {
	if err := bus.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := bus.Command(cmdSoftReset); err != nil {
		return err
	}
	p.sleep(resetDelay)
	if err := bus.Command(cmdSleepOut); err != nil {
		return err
	}
	p.sleep(sleepOutDelay)

	for _, c := range [][]byte{
		{cmdPixelFormat, pixelFormat16},
		{cmdMemoryAccess, 0x00},
		{cmdInvertOn},
		{cmdNormalOn},
		{cmdDisplayOn},
	} {
		if err := bus.Command(c[0], c[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// IsOpen reports whether the bus is held.
func (p *Panel) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bus != nil
}

// Close blanks the panel, switches it off and releases the bus.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bus != nil {
		if err := p.fillLocked(); err != nil {
			p.logger.Warn("clearing panel on close", "error", err)
		}
		if err := p.bus.Command(cmdDisplayOff); err != nil {
			p.logger.Warn("switching panel off", "error", err)
		}
		if err := p.bus.Close(); err != nil {
			p.logger.Warn("closing SPI bus", "error", err)
		}
		p.bus = nil
	}
	p.previous = nil
}

func (p *Panel) busLocked() (Bus, error) {
	if p.bus == nil {
		p.openLocked()
	}
	if p.bus == nil {
		return nil, fmt.Errorf("%w: SPI panel %s not open", screen.ErrTransport, p.cfg.Name)
	}
	return p.bus, nil
}

// Write sends raw bytes with D/C high.
func (p *Panel) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bus, err := p.busLocked()
	if err != nil {
		return err
	}
	if err := bus.Data(b); err != nil {
		return fmt.Errorf("%w: write: %w", screen.ErrTransport, err)
	}
	return nil
}

// Read clocks n bytes back from the controller after a no-op command.
func (p *Panel) Read(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bus, err := p.busLocked()
	if err != nil {
		return nil, err
	}
	resp, err := bus.Query(0x00, n)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", screen.ErrTransport, err)
	}
	return resp, nil
}

// Handshake reads the controller's display id. Boards that leave MISO
// unconnected read back zeros, which is reported as an error.
func (p *Panel) Handshake() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bus, err := p.busLocked()
	if err != nil {
		return nil, err
	}
	id, err := bus.Query(cmdReadID, idLength)
	if err != nil {
		return nil, fmt.Errorf("%w: read id: %w", screen.ErrTransport, err)
	}
	if strings.Trim(string(id), "\x00") == "" {
		return nil, fmt.Errorf("%w: empty display id", screen.ErrTransport)
	}
	p.logger.Debug("handshake ok", "display_id", strings.ToUpper(hex.EncodeToString(id)))
	return id, nil
}

// Display sends the part of img that differs from the last frame.
func (p *Panel) Display(img image.Image) error {
	current := pixel.Encode(screen.Fit(img, p.cfg.Width, p.cfg.Height))

	p.mu.Lock()
	defer p.mu.Unlock()

	region, changed, err := screen.ChangedRegion(current, p.previous)
	if err != nil {
		p.logger.Warn("frame size mismatch, full refresh", "error", err)
	}
	if !changed {
		p.previous = current
		return nil
	}

	payload, err := current.Extract(region.X1, region.X2, region.Y1, region.Y2)
	if err != nil {
		return fmt.Errorf("%w: %w", screen.ErrProtocolMismatch, err)
	}
	if err := p.writeRegionLocked(region, payload); err != nil {
		p.previous = nil
		return err
	}

	p.previous = current
	p.logger.Debug("flushed region", "region", region.String(), "bytes", len(payload))
	return nil
}

func (p *Panel) writeRegionLocked(r screen.Region, payload []byte) error {
	bus, err := p.busLocked()
	if err != nil {
		return err
	}
	for _, c := range window(r) {
		if err := bus.Command(c[0], c[1:]...); err != nil {
			return fmt.Errorf("%w: address window: %w", screen.ErrTransport, err)
		}
	}
	if err := bus.Data(payload); err != nil {
		return fmt.Errorf("%w: pixel data: %w", screen.ErrTransport, err)
	}
	return nil
}

// Clear fills the panel with black and forgets the previous frame.
func (p *Panel) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fillLocked()
}

func (p *Panel) fillLocked() error {
	p.previous = nil
	full := screen.Full(p.cfg.Width, p.cfg.Height)
	return p.writeRegionLocked(full, make([]byte, p.cfg.Width*p.cfg.Height*pixel.BytesPerPixel))
}

// SetBrightness drives the backlight pin, or the controller's brightness
// register when no pin is wired.
func (p *Panel) SetBrightness(percent int) error {
	percent = screen.ClampBrightness(percent)

	p.mu.Lock()
	defer p.mu.Unlock()

	bus, err := p.busLocked()
	if err != nil {
		return err
	}
	err = bus.Backlight(percent)
	if errors.Is(err, ErrNoBacklight) {
		if err = bus.Command(cmdControl, controlBacklight); err == nil {
			err = bus.Command(cmdBrightness, nativeBrightness(percent))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: brightness: %w", screen.ErrTransport, err)
	}
	return nil
}
