package device

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Logger defines the logging interface used by the Registry.
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

// Registry maps screen identities to driver instances.
//
// All public methods are thread-safe.
type Registry struct {
	fallback   screen.Device
	candidates []screen.Device

	cache   map[screen.Identity]screen.Device // attached at last Enumerate
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry over a fixed driver set. fallback is the
// software screen and is reported as attached unconditionally.
func NewRegistry(fallback screen.Device, candidates ...screen.Device) (*Registry, error) {
	seen := map[screen.Identity]bool{fallback.Identity(): true}
	for _, c := range candidates {
		id := c.Identity()
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, id)
		}
		seen[id] = true
	}

	return &Registry{
		fallback:   fallback,
		candidates: candidates,
		cache:      map[screen.Identity]screen.Device{fallback.Identity(): fallback},
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Enumerate probes every driver and returns the attached screens. The
// returned map is a copy and may be modified by the caller.
func (r *Registry) Enumerate() map[screen.Identity]screen.Device {
	found := map[screen.Identity]screen.Device{r.fallback.Identity(): r.fallback}
	for _, c := range r.candidates {
		if c.Probe() {
			found[c.Identity()] = c
		}
	}

	r.cacheMu.Lock()
	for id := range found {
		if _, ok := r.cache[id]; !ok {
			r.logger.Info("screen attached", "screen", id)
		}
	}
	for id := range r.cache {
		if _, ok := found[id]; !ok {
			r.logger.Info("screen detached", "screen", id)
		}
	}
	r.cache = found
	r.cacheMu.Unlock()

	out := make(map[screen.Identity]screen.Device, len(found))
	for id, d := range found {
		out[id] = d
	}
	return out
}

// Lookup returns the screen with the given identity from the last
// enumeration, rescanning once if it is not there.
func (r *Registry) Lookup(id screen.Identity) (screen.Device, error) {
	r.cacheMu.RLock()
	d, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return d, nil
	}

	if d, ok := r.Enumerate()[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Descriptors returns the attached screens from the last enumeration,
// physical panels first, each group ordered by identity.
func (r *Registry) Descriptors() []screen.Descriptor {
	r.cacheMu.RLock()
	out := make([]screen.Descriptor, 0, len(r.cache))
	for _, d := range r.cache {
		out = append(out, d.Descriptor())
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(out, func(a, b screen.Descriptor) int {
		if a.Virtual != b.Virtual {
			if a.Virtual {
				return 1
			}
			return -1
		}
		return strings.Compare(string(a.Identity), string(b.Identity))
	})
	return out
}

// Fallback returns the software screen.
func (r *Registry) Fallback() screen.Device {
	return r.fallback
}
