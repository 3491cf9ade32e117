package process

import (
	"cmp"
	"time"
)

// Environment handed to the renderer so it knows where to push frames and
// what size to draw.
const (
	FrameURLEnv    = "LCDCANVAS_FRAME_URL"
	FrameWidthEnv  = "LCDCANVAS_FRAME_WIDTH"
	FrameHeightEnv = "LCDCANVAS_FRAME_HEIGHT"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableThreshold = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second
	defaultStaleAfter      = time.Minute
	defaultWatchInterval   = 10 * time.Second
)

// Config describes the renderer subprocess and how to supervise it.
type Config struct {
	// Name labels log lines and Stats.
	Name string

	Binary  string
	Args    []string
	Env     []string // appended to the parent environment
	WorkDir string

	RestartOnFailure bool

	// RestartDelay doubles after each consecutive failure, capped at
	// MaxRestartDelay. A run lasting StableThreshold resets the count.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	StableThreshold time.Duration

	// MaxRestartAttempts of 0 retries forever.
	MaxRestartAttempts int

	// GracefulTimeout separates SIGTERM from SIGKILL on Stop.
	GracefulTimeout time.Duration

	// FrameAge, when set, enables the watchdog: every WatchInterval a
	// renderer whose last frame is older than StaleAfter is killed and
	// treated as a crash.
	FrameAge      func() time.Duration
	StaleAfter    time.Duration
	WatchInterval time.Duration

	OnStart   func()
	OnStop    func(err error)
	OnRestart func(attempt int)
}

// DefaultConfig restarts the renderer up to ten times before giving up.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		MaxRestartAttempts: 10,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	c.RestartDelay = cmp.Or(c.RestartDelay, defaultRestartDelay)
	c.MaxRestartDelay = cmp.Or(c.MaxRestartDelay, defaultMaxRestartDelay)
	c.StableThreshold = cmp.Or(c.StableThreshold, defaultStableThreshold)
	c.GracefulTimeout = cmp.Or(c.GracefulTimeout, defaultGracefulTimeout)
	c.StaleAfter = cmp.Or(c.StaleAfter, defaultStaleAfter)
	c.WatchInterval = cmp.Or(c.WatchInterval, defaultWatchInterval)
	return c
}

// backoff is the delay before restart number attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	d := c.RestartDelay
	for i := 1; i < attempt && d < c.MaxRestartDelay; i++ {
		d *= 2
	}
	return min(d, c.MaxRestartDelay)
}
