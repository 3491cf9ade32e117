package history

import (
	"context"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/monitor"
)

const (
	queueSize     = 256
	writeTimeout  = 5 * time.Second
	pruneInterval = time.Hour
)

// Logger is the logging interface used by Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder is a monitor.Notifier that stores events through a Store.
//
// Thread Safety:
//   - Notify is safe for concurrent use and never blocks.
//   - Run must be called exactly once.
type Recorder struct {
	store     *Store
	retention time.Duration
	queue     chan monitor.Event
	logger    Logger
}

// NewRecorder creates a Recorder. A retention of zero disables pruning.
func NewRecorder(store *Store, retention time.Duration) *Recorder {
	return &Recorder{
		store:     store,
		retention: retention,
		queue:     make(chan monitor.Event, queueSize),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Notify queues ev. Frame events are ignored and a full queue drops the
// event.
func (r *Recorder) Notify(ev monitor.Event) {
	if ev.Type == monitor.EventDisplayFrame {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("event history queue full, dropping event", "type", ev.Type)
	}
}

// Run writes queued events until ctx is cancelled, then drains what is
// left. It prunes once at start and then every hour.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	r.prune()

	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-ticker.C:
			r.prune()
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev monitor.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Record(ctx, ev); err != nil {
		r.logger.Warn("recording display event failed", "type", ev.Type, "error", err)
	}
}

func (r *Recorder) prune() {
	if r.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	n, err := r.store.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Warn("pruning display events failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned display events", "deleted", n)
	}
}
