package usbpanel

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/pixel"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Native panel geometry and USB identity.
const (
	Width  = 480
	Height = 320

	DefaultVendorID     uint16 = 0x1908
	DefaultProductID    uint16 = 0x0102
	DefaultSerialNumber        = "WCH32"
	DefaultWriteTimeout        = 5 * time.Second
	DefaultAckTimeout          = time.Second
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

// Config holds the USB panel settings.
type Config struct {
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	WriteTimeout time.Duration
	AckTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.VendorID == 0 {
		c.VendorID = DefaultVendorID
	}
	if c.ProductID == 0 {
		c.ProductID = DefaultProductID
	}
	if c.SerialNumber == "" {
		c.SerialNumber = DefaultSerialNumber
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = DefaultAckTimeout
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

// WithDialer replaces the gousb dialer, mainly for tests.
func WithDialer(fn DialFunc) Option {
	return func(p *Panel) { p.dial = fn }
}

// WithProber replaces the gousb bus scan, mainly for tests.
func WithProber(fn ProbeFunc) Option {
	return func(p *Panel) { p.probe = fn }
}

var _ screen.Device = (*Panel)(nil)

// Panel is the USB full-frame driver.
//
// Thread Safety:
//   - All methods are safe for concurrent use. mu guards conn and keeps each
//     block/payload/ack exchange together.
type Panel struct {
	cfg    Config
	dial   DialFunc
	probe  ProbeFunc
	logger Logger
	white  *pixel.Frame

	mu   sync.Mutex
	conn Conn
}

// New creates a USB panel driver. It does not open the device.
func New(cfg Config, opts ...Option) *Panel {
	cfg.applyDefaults()
	p := &Panel{
		cfg:    cfg,
		dial:   dialGousb,
		probe:  probeGousb,
		logger: noopLogger{},
		white:  pixel.Solid(Width, Height, color.White),
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
	return fmt.Sprintf("VID:PID=%#04x:%#04x SER=%s", p.cfg.VendorID, p.cfg.ProductID, p.cfg.SerialNumber)
}

// Probe reports whether the device is on the bus.
func (p *Panel) Probe() bool {
	return p.probe(p.cfg)
}

// Open claims the device. Failures are logged and leave the panel closed.
func (p *Panel) Open() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openLocked()
}

func (p *Panel) openLocked() {
	if p.conn != nil {
		return
	}
	conn, err := p.dial(p.cfg)
	if err != nil {
		p.logger.Debug("usb panel open failed", "device", p.String(), "error", err)
		return
	}
	p.conn = conn
	p.logger.Info("usb panel opened", "device", p.String())
}

// IsOpen reports whether the device is claimed.
func (p *Panel) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Close whites out the panel, resets the device and releases it.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return
	}
	if err := p.displayLocked(p.white); err != nil {
		p.logger.Warn("clearing panel on close", "error", err)
	}
	if err := p.conn.Reset(); err != nil {
		p.logger.Warn("resetting usb panel", "error", err)
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Warn("releasing usb panel", "error", err)
	}
	p.conn = nil
}

// Write sends raw bytes to the bulk OUT endpoint, opening the device first
// if needed.
func (p *Panel) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(b)
}

func (p *Panel) writeLocked(b []byte) error {
	if p.conn == nil {
		p.openLocked()
	}
	if p.conn == nil {
		return fmt.Errorf("%w: usb panel %s not open", screen.ErrTransport, p.cfg.SerialNumber)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
	defer cancel()

	n, err := p.conn.Write(ctx, b)
	if err != nil {
		return fmt.Errorf("%w: bulk write: %w", screen.ErrTransport, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: zero bytes written", screen.ErrTransport)
	}
	return nil
}

// Read reads up to n bytes from the bulk IN endpoint.
func (p *Panel) Read(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readLocked(n)
}

func (p *Panel) readLocked(n int) ([]byte, error) {
	if p.conn == nil {
		return nil, fmt.Errorf("%w: %w", screen.ErrTransport, screen.ErrNotOpen)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AckTimeout)
	defer cancel()

	buf := make([]byte, n)
	got, err := p.conn.Read(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: bulk read: %w", screen.ErrTransport, err)
	}
	return buf[:got], nil
}

func (p *Panel) ackLocked() error {
	_, err := p.readLocked(AckSize)
	return err
}

// Handshake sends the identify command and returns the 5-byte reply.
func (p *Panel) Handshake() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.writeLocked(buildIdentify()); err != nil {
		return nil, err
	}
	resp, err := p.readLocked(identifyLength)
	if err != nil {
		return nil, err
	}
	if err := p.ackLocked(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Display transmits img as a full frame.
func (p *Panel) Display(img image.Image) error {
	frame := pixel.Encode(screen.Fit(img, Width, Height))

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayLocked(frame)
}

func (p *Panel) displayLocked(frame *pixel.Frame) error {
	if err := p.writeLocked(buildDisplay(0, 0, frame.Width, frame.Height)); err != nil {
		return err
	}
	if err := p.writeLocked(frame.Pix); err != nil {
		return err
	}
	return p.ackLocked()
}

// Clear paints the panel white. The transport has no clear command.
func (p *Panel) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayLocked(p.white)
}

// SetBrightness maps percent (clamped to 0-100) onto the panel's 0-7 scale.
func (p *Panel) SetBrightness(percent int) error {
	level := nativeBrightness(screen.ClampBrightness(percent))

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.writeLocked(buildBrightness(level)); err != nil {
		return err
	}
	return p.ackLocked()
}
