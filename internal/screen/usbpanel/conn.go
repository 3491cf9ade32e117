package usbpanel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/gousb"
)

// Conn is an open bulk link to the panel.
type Conn interface {
	Write(ctx context.Context, p []byte) (int, error)
	Read(ctx context.Context, p []byte) (int, error)
	Reset() error
	Close() error
}

// DialFunc opens a Conn to the panel described by cfg.
type DialFunc func(cfg Config) (Conn, error)

// ProbeFunc reports whether the panel is attached without claiming it.
type ProbeFunc func(cfg Config) bool

var (
	errNotFound       = errors.New("usbpanel: device not found")
	errSerialMismatch = errors.New("usbpanel: serial number mismatch")
)

// Endpoint numbers; the IN endpoint is address 0x81.
const (
	outEndpoint = 1
	inEndpoint  = 1
)

type gousbConn struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// dialGousb claims the default interface of the first device matching the
// configured VID:PID. A readable serial number must match; devices that do
// not report one are accepted.
func dialGousb(cfg Config) (Conn, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(cfg.VendorID), gousb.ID(cfg.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("opening %04x:%04x: %w", cfg.VendorID, cfg.ProductID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, errNotFound
	}

	if sn, err := dev.SerialNumber(); !serialMatches(sn, err, cfg.SerialNumber) {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: got %q", errSerialMismatch, sn)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("enabling auto detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claiming interface: %w", err)
	}

	c := &gousbConn{ctx: ctx, dev: dev, done: done}
	if c.out, err = intf.OutEndpoint(outEndpoint); err != nil {
		c.Close()
		return nil, fmt.Errorf("out endpoint: %w", err)
	}
	if c.in, err = intf.InEndpoint(inEndpoint); err != nil {
		c.Close()
		return nil, fmt.Errorf("in endpoint: %w", err)
	}
	return c, nil
}

// probeGousb opens every device with the configured VID:PID and checks its
// serial number. A device that is visible but cannot be opened is accepted,
// since its serial number is unreadable.
func probeGousb(cfg Config) bool {
	ctx := gousb.NewContext()
	defer ctx.Close()

	matched := 0
	devs, _ := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		ok := desc.Vendor == gousb.ID(cfg.VendorID) && desc.Product == gousb.ID(cfg.ProductID)
		if ok {
			matched++
		}
		return ok
	})
	defer func() {
		for _, dev := range devs {
			dev.Close()
		}
	}()

	if len(devs) == 0 {
		return matched > 0
	}
	for _, dev := range devs {
		if sn, err := dev.SerialNumber(); serialMatches(sn, err, cfg.SerialNumber) {
			return true
		}
	}
	return false
}

// serialMatches accepts an unreadable or empty serial number; anything else
// must equal want once NUL padding is removed.
func serialMatches(sn string, err error, want string) bool {
	if err != nil {
		return true
	}
	sn = strings.ReplaceAll(sn, "\x00", "")
	return sn == "" || sn == want
}

func (c *gousbConn) Write(ctx context.Context, p []byte) (int, error) {
	return c.out.WriteContext(ctx, p)
}

func (c *gousbConn) Read(ctx context.Context, p []byte) (int, error) {
	return c.in.ReadContext(ctx, p)
}

func (c *gousbConn) Reset() error {
	return c.dev.Reset()
}

func (c *gousbConn) Close() error {
	c.done()
	err := c.dev.Close()
	if cerr := c.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}
