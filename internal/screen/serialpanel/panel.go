package serialpanel

import (
	"encoding/hex"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/lcdcanvas/internal/pixel"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Native panel geometry.
const (
	Width  = 320
	Height = 480

	DefaultSerialNumber = "QDTFT35_V1COM"
	DefaultBaudRate     = 115200
	DefaultReadTimeout  = time.Second
)

// Port is the subset of serial.Port the driver uses.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

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

// Config holds the serial panel settings.
type Config struct {
	// Port pins the device path. Empty means find it by SerialNumber.
	Port         string
	SerialNumber string
	BaudRate     int
	ReadTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.SerialNumber == "" {
		c.SerialNumber = DefaultSerialNumber
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// OpenFunc opens a serial port by name.
type OpenFunc func(name string, mode *serial.Mode) (Port, error)

// ListFunc enumerates serial ports with their USB details.
type ListFunc func() ([]*enumerator.PortDetails, error)

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

// WithOpener replaces serial.Open, mainly for tests.
func WithOpener(fn OpenFunc) Option {
	return func(p *Panel) { p.openPort = fn }
}

// WithLister replaces enumerator.GetDetailedPortsList, mainly for tests.
func WithLister(fn ListFunc) Option {
	return func(p *Panel) { p.listPorts = fn }
}

var _ screen.Device = (*Panel)(nil)

// Panel is the serial partial-update driver.
//
// Thread Safety:
//   - All methods are safe for concurrent use. mu guards the port handle
//     and the retained previous frame.
type Panel struct {
	cfg       Config
	openPort  OpenFunc
	listPorts ListFunc
	logger    Logger

	mu       sync.Mutex
	port     Port
	previous *pixel.Frame
}

// New creates a serial panel driver. It does not open the port.
func New(cfg Config, opts ...Option) *Panel {
	cfg.applyDefaults()
	p := &Panel{
		cfg: cfg,
		openPort: func(name string, mode *serial.Mode) (Port, error) {
			return serial.Open(name, mode)
		},
		listPorts: enumerator.GetDetailedPortsList,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identity returns the configured USB serial number.
func (p *Panel) Identity() screen.Identity {
	return screen.Identity(p.cfg.SerialNumber)
}

// Descriptor returns the panel capabilities.
func (p *Panel) Descriptor() screen.Descriptor {
	return screen.Descriptor{Identity: p.Identity(), Width: Width, Height: Height}
}

func (p *Panel) String() string {
	return fmt.Sprintf("QDTECH serial panel SER=%s", p.cfg.SerialNumber)
}

// Probe reports whether a matching port is enumerated.
func (p *Panel) Probe() bool {
	_, ok := p.findPort()
	return ok
}

func (p *Panel) findPort() (string, bool) {
	ports, err := p.listPorts()
	if err != nil {
		p.logger.Error("listing serial ports", "error", err)
		return "", false
	}
	for _, d := range ports {
		if p.cfg.Port != "" {
			if d.Name == p.cfg.Port {
				return d.Name, true
			}
			continue
		}
		if d.IsUSB && strings.EqualFold(d.SerialNumber, p.cfg.SerialNumber) {
			return d.Name, true
		}
	}
	return "", false
}

// Open acquires the port. Failures are logged and leave the panel closed.
func (p *Panel) Open() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openLocked()
}

func (p *Panel) openLocked() {
	if p.port != nil {
		return
	}

	name, ok := p.findPort()
	if !ok {
		p.logger.Debug("serial panel not found", "serial", p.cfg.SerialNumber)
		return
	}

	port, err := p.openPort(name, &serial.Mode{BaudRate: p.cfg.BaudRate})
	if err != nil {
		p.logger.Error("opening serial panel", "port", name, "error", err)
		return
	}

	if err := port.SetReadTimeout(p.cfg.ReadTimeout); err != nil {
		p.logger.Warn("setting read timeout", "port", name, "error", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		p.logger.Warn("resetting input buffer", "port", name, "error", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		p.logger.Warn("resetting output buffer", "port", name, "error", err)
	}

	p.port = port
	p.logger.Info("serial panel opened", "port", name)
}

// IsOpen reports whether the port handle is held.
func (p *Panel) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port != nil
}

// Close blanks the panel and releases the port. The panel is always closed
// afterwards.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		if err := p.writeLocked(buildClear()); err != nil {
			p.logger.Warn("clearing panel on close", "error", err)
		}
		if err := p.port.Close(); err != nil {
			p.logger.Warn("closing serial port", "error", err)
		}
		p.port = nil
	}
	p.previous = nil
}

// Write sends raw bytes, opening the port first if needed.
func (p *Panel) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(b)
}

func (p *Panel) writeLocked(b []byte) error {
	if p.port == nil {
		p.openLocked()
	}
	if p.port == nil {
		return fmt.Errorf("%w: serial panel %s not open", screen.ErrTransport, p.cfg.SerialNumber)
	}

	for len(b) > 0 {
		n, err := p.port.Write(b)
		if err != nil {
			return fmt.Errorf("%w: write: %w", screen.ErrTransport, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: zero bytes written", screen.ErrTransport)
		}
		b = b[n:]
	}

	if err := p.port.Drain(); err != nil {
		return fmt.Errorf("%w: drain: %w", screen.ErrTransport, err)
	}
	return nil
}

// Read reads up to n bytes, bounded by the configured read timeout.
func (p *Panel) Read(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readLocked(n)
}

func (p *Panel) readLocked(n int) ([]byte, error) {
	if p.port == nil {
		p.openLocked()
	}
	if p.port == nil {
		return nil, fmt.Errorf("%w: %w", screen.ErrTransport, screen.ErrNotOpen)
	}

	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := p.port.Read(buf[got:])
		if err != nil {
			return buf[:got], fmt.Errorf("%w: read: %w", screen.ErrTransport, err)
		}
		if m == 0 {
			// Timeout.
			break
		}
		got += m
	}
	if got == 0 {
		return nil, fmt.Errorf("%w: read timed out", screen.ErrTransport)
	}
	return buf[:got], nil
}

// Handshake requests the panel's unique id.
func (p *Panel) Handshake() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.writeLocked(buildHandshake()); err != nil {
		return nil, err
	}
	resp, err := p.readLocked(uniqueIDLength)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("handshake ok", "unique_id", strings.ToUpper(hex.EncodeToString(resp)))
	return resp, nil
}

// Display sends the part of img that differs from the last frame. Nothing
// is sent when the frame is unchanged.
func (p *Panel) Display(img image.Image) error {
	current := pixel.Encode(screen.Fit(img, Width, Height))

	p.mu.Lock()
	defer p.mu.Unlock()

	region, changed, err := screen.ChangedRegion(current, p.previous)
	if err != nil {
		p.logger.Warn("frame size mismatch, full refresh", "error", err)
	}
	if !changed {
		p.previous = current
		p.logger.Debug("no update, skip flush")
		return nil
	}

	payload, err := current.Extract(region.X1, region.X2, region.Y1, region.Y2)
	if err != nil {
		return fmt.Errorf("%w: %w", screen.ErrProtocolMismatch, err)
	}

	if err := p.writeLocked(buildDisplay(region.X1, region.X2, region.Y1, region.Y2)); err != nil {
		p.previous = nil
		return err
	}
	if err := p.writeLocked(payload); err != nil {
		p.previous = nil
		return err
	}

	p.previous = current
	p.logger.Debug("flushed region", "region", region.String(), "bytes", len(payload))
	return nil
}

// Clear fills the panel and forgets the previous frame, so the next
// Display is a full refresh.
func (p *Panel) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.previous = nil
	return p.writeLocked(buildClear())
}

// SetBrightness maps percent (clamped to 0-100) onto the panel's 0-255 scale.
func (p *Panel) SetBrightness(percent int) error {
	level := nativeBrightness(screen.ClampBrightness(percent))
	return p.Write(buildBrightness(level))
}
