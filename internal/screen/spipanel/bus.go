package spipanel

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Bus is the wired link to the controller.
type Bus interface {
	// Command sends cmd with D/C low, then args with D/C high.
	Command(cmd byte, args ...byte) error
	// Data sends pixel or parameter bytes with D/C high.
	Data(p []byte) error
	// Query sends cmd and returns the n bytes clocked back after it.
	Query(cmd byte, n int) ([]byte, error)
	// Reset pulses the reset line. Without one it does nothing.
	Reset() error
	// Backlight drives the backlight pin. It returns ErrNoBacklight when
	// no pin is wired.
	Backlight(percent int) error
	Close() error
}

// OpenFunc opens the bus described by cfg.
type OpenFunc func(cfg Config) (Bus, error)

// ProbeFunc reports whether the bus and pins exist without opening them.
type ProbeFunc func(cfg Config) bool

// ErrNoBacklight is returned by Bus.Backlight when no pin is configured.
var ErrNoBacklight = errors.New("spipanel: no backlight pin")

// defaultChunk bounds a single transfer when the port reports no limit.
// It matches the Linux spidev default buffer size.
const defaultChunk = 4096

const backlightFrequency = 10 * physic.KiloHertz

type periphBus struct {
	port  spi.PortCloser
	conn  spi.Conn
	dc    gpio.PinOut
	rst   gpio.PinOut
	bl    gpio.PinOut
	chunk int
}

func probePeriph(cfg Config) bool {
	if _, err := host.Init(); err != nil {
		return false
	}
	if gpioreg.ByName(cfg.DC) == nil {
		return false
	}
	for _, ref := range spireg.All() {
		if cfg.Bus == "" || ref.Name == cfg.Bus || slices.Contains(ref.Aliases, cfg.Bus) {
			return true
		}
	}
	return false
}

func openPeriph(cfg Config) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising periph host: %w", err)
	}

	dc := gpioreg.ByName(cfg.DC)
	if dc == nil {
		return nil, fmt.Errorf("unknown D/C pin %q", cfg.DC)
	}
	b := &periphBus{dc: dc, chunk: defaultChunk}
	if cfg.Reset != "" {
		if b.rst = gpioreg.ByName(cfg.Reset); b.rst == nil {
			return nil, fmt.Errorf("unknown reset pin %q", cfg.Reset)
		}
	}
	if cfg.Backlight != "" {
		if b.bl = gpioreg.ByName(cfg.Backlight); b.bl == nil {
			return nil, fmt.Errorf("unknown backlight pin %q", cfg.Backlight)
		}
	}

	port, err := spireg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("opening SPI bus %q: %w", cfg.Bus, err)
	}
	c, err := port.Connect(physic.Frequency(cfg.SpeedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("configuring SPI bus %q: %w", cfg.Bus, err)
	}
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		b.chunk = l.MaxTxSize()
	}
	b.port, b.conn = port, c
	return b, nil
}

func (b *periphBus) Command(cmd byte, args ...byte) error {
	if err := b.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := b.conn.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	return b.Data(args)
}

func (b *periphBus) Data(p []byte) error {
	if err := b.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(p) > 0 {
		n := min(len(p), b.chunk)
		if err := b.conn.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Query keeps chip select asserted for the whole exchange; the first byte
// read back clocks out while the command is sent and is discarded.
func (b *periphBus) Query(cmd byte, n int) ([]byte, error) {
	if err := b.dc.Out(gpio.Low); err != nil {
		return nil, err
	}
	w := make([]byte, n+1)
	w[0] = cmd
	r := make([]byte, n+1)
	if err := b.conn.Tx(w, r); err != nil {
		return nil, err
	}
	return r[1:], nil
}

func (b *periphBus) Reset() error {
	if b.rst == nil {
		return nil
	}
	if err := b.rst.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if err := b.rst.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(120 * time.Millisecond)
	return nil
}

// Backlight uses PWM where the pin supports it and plain on/off otherwise.
func (b *periphBus) Backlight(percent int) error {
	if b.bl == nil {
		return ErrNoBacklight
	}
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(percent) / 100)
	if err := b.bl.PWM(duty, backlightFrequency); err == nil {
		return nil
	}
	level := gpio.Low
	if percent > 0 {
		level = gpio.High
	}
	return b.bl.Out(level)
}

func (b *periphBus) Close() error {
	if b.bl != nil {
		_ = b.bl.Out(gpio.Low)
	}
	return b.port.Close()
}
