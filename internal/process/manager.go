package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is where the renderer is in its lifecycle.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
)

// ErrAlreadyRunning is returned by Start while a previous run is still
// supervised.
var ErrAlreadyRunning = errors.New("process: already running")

// errCleanExit stands in for a nil Wait error; the renderer is expected to
// run until stopped.
var errCleanExit = errors.New("exited with status 0")

// Logger is satisfied by *logging.Logger.
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

// Manager runs one renderer and restarts it when it crashes or goes
// stale. The child gets its own process group so Stop also reaches any
// browser or helper it spawned.
type Manager struct {
	config Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	restarts  int
	lastError error
	startTime time.Time
	stopping  bool
	alive     bool
	stopCh    chan struct{}
	done      chan struct{}
}

// NewManager fills unset durations with the DefaultConfig values.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg.withDefaults(),
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger must be called before Start.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start spawns the renderer and supervises it in the background until
// Stop is called or ctx ends. A spawn failure is returned directly.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting || m.status == StatusBackoff {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopping = false
	m.restarts = 0
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.spawn(ctx); err != nil {
		m.mu.Lock()
		m.status, m.lastError = StatusFailed, err
		close(m.done)
		m.mu.Unlock()
		return err
	}
	go m.supervise(ctx)
	return nil
}

func (m *Manager) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // operator-configured renderer command
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), m.config.Env...)
	cmd.Dir = m.config.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("renderer stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("renderer stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s (%s): %w", m.config.Name, m.config.Binary, err)
	}

	m.mu.Lock()
	m.cmd, m.alive, m.status, m.startTime = cmd, true, StatusRunning, time.Now()
	m.mu.Unlock()

	go m.relay("stdout", stdout)
	go m.relay("stderr", stderr)

	m.logger.Info("renderer started", "name", m.config.Name, "pid", cmd.Process.Pid)
	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// supervise waits on the current child and decides after each exit
// whether to restart it.
func (m *Manager) supervise(ctx context.Context) {
	m.mu.RLock()
	done, stopCh := m.done, m.stopCh
	m.mu.RUnlock()
	defer close(done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		m.mu.RUnlock()

		err := m.wait(ctx, cmd)

		m.mu.Lock()
		m.alive = false
		stopping := m.stopping
		ranFor := time.Since(m.startTime)
		m.mu.Unlock()

		if stopping || ctx.Err() != nil {
			m.logger.Info("renderer stopped", "name", m.config.Name)
			m.setStatus(StatusStopped, nil)
			m.notifyStop(nil)
			return
		}

		if err == nil {
			err = errCleanExit
		}
		m.logger.Warn("renderer exited", "name", m.config.Name, "error", err, "ran_for", ranFor)
		m.setStatus(StatusFailed, err)
		m.notifyStop(err)

		attempt, ok := m.nextAttempt(ranFor)
		if !ok {
			return
		}
		delay := m.config.backoff(attempt)
		m.logger.Info("restarting renderer", "name", m.config.Name, "attempt", attempt, "delay", delay)
		m.setStatus(StatusBackoff, err)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			m.setStatus(StatusStopped, nil)
			return
		case <-stopCh:
			m.setStatus(StatusStopped, nil)
			return
		case <-time.After(delay):
		}

		if err := m.spawn(ctx); err != nil {
			m.logger.Error("renderer restart failed", "name", m.config.Name, "error", err)
			m.setStatus(StatusFailed, err)
			return
		}
	}
}

// nextAttempt counts a restart, resetting after a stable run. It reports
// false when restarts are off or exhausted.
func (m *Manager) nextAttempt(ranFor time.Duration) (int, bool) {
	if !m.config.RestartOnFailure {
		return 0, false
	}
	m.mu.Lock()
	if ranFor >= m.config.StableThreshold {
		m.restarts = 0
	}
	m.restarts++
	attempt := m.restarts
	m.mu.Unlock()

	if limit := m.config.MaxRestartAttempts; limit > 0 && attempt > limit {
		m.logger.Error("renderer restart limit reached", "name", m.config.Name, "attempts", limit)
		return 0, false
	}
	return attempt, true
}

func (m *Manager) notifyStop(err error) {
	if m.config.OnStop != nil {
		m.config.OnStop(err)
	}
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	if err != nil {
		m.lastError = err
	}
}

// Stop sends SIGTERM to the renderer's process group, escalating to
// SIGKILL after GracefulTimeout, and waits for supervision to end.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil || m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	close(m.stopCh)
	cmd, alive, done := m.cmd, m.alive, m.done
	m.mu.Unlock()

	if !alive || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pgid := -cmd.Process.Pid
	m.logger.Info("stopping renderer", "name", m.config.Name, "pid", cmd.Process.Pid)
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("SIGTERM failed", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("renderer ignored SIGTERM, killing", "name", m.config.Name)
	}
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError is the most recent reason the renderer exited or failed to
// start.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Stats is served by GET /api/v1/renderer.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Name: m.config.Name, Status: m.status, RestartCount: m.restarts}
	if m.cmd != nil && m.cmd.Process != nil {
		st.PID = m.cmd.Process.Pid
	}
	if m.status == StatusRunning {
		st.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		st.LastError = m.lastError.Error()
	}
	return st
}
