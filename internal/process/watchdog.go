package process

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// errStale marks a kill issued by the frame watchdog.
var errStale = errors.New("process: renderer stopped producing frames")

// relay logs renderer output line by line. stderr is logged at warn,
// stdout at debug.
func (m *Manager) relay(stream string, r io.Reader) {
	log := m.logger.Debug
	if stream == "stderr" {
		log = m.logger.Warn
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log("renderer output", "name", m.config.Name, "stream", stream, "line", sc.Text())
	}
}

// stale reports whether a renderer that has been up for uptime should be
// killed. A fresh process gets StaleAfter to deliver its first frame.
func (m *Manager) stale(uptime time.Duration) (time.Duration, bool) {
	if uptime < m.config.StaleAfter {
		return 0, false
	}
	age := m.config.FrameAge()
	return age, age >= m.config.StaleAfter
}

// wait blocks until cmd exits. With a FrameAge source it also polls for
// staleness and kills the whole process group when frames stop.
func (m *Manager) wait(ctx context.Context, cmd *exec.Cmd) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if m.config.FrameAge == nil {
		return <-exited
	}

	tick := time.NewTicker(m.config.WatchInterval)
	defer tick.Stop()
	for {
		select {
		case err := <-exited:
			return err
		case <-ctx.Done():
			return <-exited
		case <-tick.C:
			m.mu.RLock()
			uptime := time.Since(m.startTime)
			m.mu.RUnlock()

			age, dead := m.stale(uptime)
			if !dead {
				continue
			}
			m.logger.Error("renderer stale, killing", "name", m.config.Name, "frame_age", age)
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			<-exited
			return errStale
		}
	}
}
