package display

import (
	"context"
	"image"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Defaults for the loop tunables.
const (
	DefaultErrorLimit         = 10
	DefaultBrightnessAttempts = 3
	DefaultRetryDelay         = time.Second
	DefaultTargetInterval     = time.Second
	DefaultMinInterval        = 100 * time.Millisecond
	DefaultSlowCycleDelay     = 100 * time.Millisecond
)

// Renderer produces the next image to show. A nil image with a nil error
// means nothing new is available.
type Renderer interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// Recorder receives one call per display cycle. err is nil on success.
type Recorder interface {
	RecordCycle(id screen.Identity, elapsed time.Duration, err error)
}

// Config contains the scheduler settings and callbacks.
type Config struct {
	Renderer Renderer
	Recorder Recorder

	// ErrorLimit is the number of consecutive failures tolerated; the
	// loop stops on the next one.
	ErrorLimit int

	// BrightnessAttempts bounds SetBrightness retries.
	BrightnessAttempts int

	RetryDelay     time.Duration
	TargetInterval time.Duration
	MinInterval    time.Duration
	SlowCycleDelay time.Duration

	// OnStopped is called every time the loop exits.
	OnStopped func(id screen.Identity)

	// OnFailure is called once per exhausted retry budget, for the display
	// loop and for SetBrightness alike.
	OnFailure func(err error)

	// OnFrame is called after every displayed frame.
	OnFrame func(id screen.Identity, elapsed time.Duration)
}

func (c *Config) applyDefaults() {
	if c.ErrorLimit <= 0 {
		c.ErrorLimit = DefaultErrorLimit
	}
	if c.BrightnessAttempts <= 0 {
		c.BrightnessAttempts = DefaultBrightnessAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.TargetInterval <= 0 {
		c.TargetInterval = DefaultTargetInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.SlowCycleDelay <= 0 {
		c.SlowCycleDelay = DefaultSlowCycleDelay
	}
}

// pace returns how long to sleep after a successful cycle.
func (c *Config) pace(elapsed time.Duration) time.Duration {
	if elapsed > c.TargetInterval {
		return c.SlowCycleDelay
	}
	return max(c.MinInterval, c.TargetInterval-elapsed)
}
