package process

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) record(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			if s, ok := args[i+1].(string); ok {
				l.lines = append(l.lines, s)
			}
		}
	}
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record(msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record(msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record(msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record(msg, args...) }

func (l *captureLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "renderer", Binary: "/bin/true"})

	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want 5s", m.config.RestartDelay)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want 5m", m.config.MaxRestartDelay)
	}
	if m.config.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want 2m", m.config.StableThreshold)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want 10s", m.config.GracefulTimeout)
	}
	if m.config.StaleAfter != time.Minute {
		t.Errorf("StaleAfter = %v, want 1m", m.config.StaleAfter)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %v, want stopped", m.Status())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("renderer", "/usr/bin/renderer", []string{"--fast"})
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure should default to true")
	}
	if cfg.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", cfg.MaxRestartAttempts)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "--fast" {
		t.Errorf("Args = %v", cfg.Args)
	}
}

func TestManager_StopWhenNotStarted(t *testing.T) {
	m := NewManager(Config{Name: "renderer", Binary: "/bin/true"})
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestManager_StartAndStop(t *testing.T) {
	var started, stopped atomic.Int32
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "/bin/sleep",
		Args:            []string{"30"},
		GracefulTimeout: time.Second,
		OnStart:         func() { started.Add(1) },
		OnStop:          func(error) { stopped.Add(1) },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if pid := m.Stats().PID; pid == 0 {
		t.Error("Stats().PID = 0 for running process")
	}

	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %v after Stop, want stopped", m.Status())
	}
	if started.Load() != 1 || stopped.Load() != 1 {
		t.Errorf("callbacks start=%d stop=%d, want 1/1", started.Load(), stopped.Load())
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{Name: "missing", Binary: "/nonexistent/renderer"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail for a missing binary")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %v, want failed", m.Status())
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after failed start")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestManager_NoRestartOnExit(t *testing.T) {
	var stopErr atomic.Value
	m := NewManager(Config{
		Name:   "oneshot",
		Binary: "/bin/true",
		OnStop: func(err error) {
			if err != nil {
				stopErr.Store(err)
			}
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return m.Status() == StatusFailed })

	if stopErr.Load() == nil {
		t.Error("OnStop should receive an error for an unexpected exit")
	}
	if m.Stats().RestartCount != 0 {
		t.Errorf("RestartCount = %d, want 0", m.Stats().RestartCount)
	}
}

func TestManager_RestartsUntilLimit(t *testing.T) {
	var restarts atomic.Int32
	m := NewManager(Config{
		Name:               "flaky",
		Binary:             "/bin/true",
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnRestart:          func(int) { restarts.Add(1) },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool {
		return m.Status() == StatusFailed && m.Stats().RestartCount == 3
	})
	if got := restarts.Load(); got != 2 {
		t.Errorf("OnRestart called %d times, want 2", got)
	}
	_ = m.Stop()
}

func TestManager_StopDuringBackoff(t *testing.T) {
	m := NewManager(Config{
		Name:             "flaky",
		Binary:           "/bin/true",
		RestartOnFailure: true,
		RestartDelay:     time.Hour,
		MaxRestartDelay:  time.Hour,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return m.Status() == StatusBackoff })

	done := make(chan struct{})
	go func() {
		_ = m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not interrupt the backoff wait")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %v, want stopped", m.Status())
	}
}

func TestManager_CapturesOutput(t *testing.T) {
	log := &captureLogger{}
	m := NewManager(Config{
		Name:   "echo",
		Binary: "/bin/echo",
		Args:   []string{"frame pushed"},
	})
	m.SetLogger(log)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return log.contains("frame pushed") })
}

func TestManager_StaleRendererKilled(t *testing.T) {
	var stopErr atomic.Value
	m := NewManager(Config{
		Name:          "hung",
		Binary:        "/bin/sleep",
		Args:          []string{"30"},
		FrameAge:      func() time.Duration { return time.Hour },
		StaleAfter:    20 * time.Millisecond,
		WatchInterval: 10 * time.Millisecond,
		OnStop: func(err error) {
			if err != nil {
				stopErr.Store(err)
			}
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return m.Status() == StatusFailed })

	err, _ := stopErr.Load().(error)
	if !errors.Is(err, errStale) {
		t.Errorf("OnStop error = %v, want errStale", err)
	}
}

func TestBackoff(t *testing.T) {
	m := NewManager(Config{
		Name:            "renderer",
		Binary:          "/bin/true",
		RestartDelay:    time.Second,
		MaxRestartDelay: 10 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := m.config.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
