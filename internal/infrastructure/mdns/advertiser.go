package mdns

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
)

// DNS-SD naming.
const (
	ServiceType = "_lcdcanvas._tcp"
	Domain      = "local."

	// maxInstanceLen is the DNS label limit.
	maxInstanceLen = 63

	apiPath = "/api/v1"
)

// ErrNotStarted is returned by Update before Start.
var ErrNotStarted = errors.New("mdns: not advertising")

// Server is a running registration. Satisfied by *zeroconf.Server.
type Server interface {
	SetText(txt []string)
	Shutdown()
}

// RegisterFunc publishes a service. The default wraps zeroconf.Register.
type RegisterFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error)

func registerZeroconf(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, txt, ifaces)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Advertiser publishes and updates the service record.
type Advertiser struct {
	cfg      config.MDNSConfig
	version  string
	register RegisterFunc

	mu      sync.Mutex
	server  Server
	screen  string
	running bool
}

// New creates an Advertiser. Nothing is published until Start.
func New(cfg config.MDNSConfig, version string) *Advertiser {
	if cfg.Instance == "" {
		cfg.Instance = "lcdcanvas"
	}
	if len(cfg.Instance) > maxInstanceLen {
		cfg.Instance = cfg.Instance[:maxInstanceLen]
	}
	return &Advertiser{cfg: cfg, version: version, register: registerZeroconf}
}

// SetRegisterFunc replaces the zeroconf registration, mainly for tests.
func (a *Advertiser) SetRegisterFunc(fn RegisterFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.register = fn
}

// Start publishes the service for the API on port. Calling Start again
// replaces the registration.
func (a *Advertiser) Start(port int) error {
	ifaces, err := a.interfaces()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	srv, err := a.register(a.cfg.Instance, ServiceType, Domain, port, a.textLocked(), ifaces)
	if err != nil {
		return fmt.Errorf("registering %s: %w", ServiceType, err)
	}
	a.server = srv
	return nil
}

// interfaces resolves the configured interface; nil means all of them.
func (a *Advertiser) interfaces() ([]net.Interface, error) {
	if a.cfg.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("mdns interface %q: %w", a.cfg.Interface, err)
	}
	return []net.Interface{*iface}, nil
}

// Update changes the advertised screen and display state.
func (a *Advertiser) Update(screen string, running bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.screen == screen && a.running == running && a.server != nil {
		return nil
	}
	a.screen, a.running = screen, running
	if a.server == nil {
		return ErrNotStarted
	}
	a.server.SetText(a.textLocked())
	return nil
}

// Text returns the current TXT records.
func (a *Advertiser) Text() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.textLocked()
}

func (a *Advertiser) textLocked() []string {
	display := "off"
	if a.running {
		display = "on"
	}
	return []string{
		"version=" + a.version,
		"path=" + apiPath,
		"screen=" + a.screen,
		"display=" + display,
	}
}

// Close withdraws the service. It is safe to call more than once.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}
