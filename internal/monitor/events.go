package monitor

import (
	"sync"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Event types.
const (
	EventDisplayStarted  = "display.started"
	EventDisplayStopped  = "display.stopped"
	EventDisplayFailure  = "display.failure"
	EventDisplayFrame    = "display.frame"
	EventScreenSelected  = "screen.selected"
	EventSettingsChanged = "settings.changed"
)

// Event describes a change worth telling clients about.
type Event struct {
	Type      string          `json:"type"`
	Screen    screen.Identity `json:"screen,omitempty"`
	Message   string          `json:"message,omitempty"`
	Session   display.Session `json:"session"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notifier receives events. Implementations must return quickly.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// fanout delivers to every registered notifier.
type fanout struct {
	mu   sync.RWMutex
	list []Notifier
}

func (f *fanout) add(n Notifier) {
	f.mu.Lock()
	f.list = append(f.list, n)
	f.mu.Unlock()
}

func (f *fanout) Notify(ev Event) {
	f.mu.RLock()
	list := f.list
	f.mu.RUnlock()
	for _, n := range list {
		n.Notify(ev)
	}
}

// JSONPublisher is satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTNotifier publishes the retained display state on every event except
// frames, and non-frame events to the event topic.
type MQTTNotifier struct {
	Publisher  JSONPublisher
	StateTopic string
	EventTopic string
	Logger     Logger
}

func (m *MQTTNotifier) Notify(ev Event) {
	if ev.Type == EventDisplayFrame {
		return
	}
	if err := m.Publisher.PublishJSON(m.StateTopic, ev.Session, true); err != nil {
		m.log().Debug("mqtt state publish failed", "error", err)
	}
	if err := m.Publisher.PublishJSON(m.EventTopic, ev, false); err != nil {
		m.log().Debug("mqtt event publish failed", "error", err)
	}
}

func (m *MQTTNotifier) log() Logger {
	if m.Logger == nil {
		return noopLogger{}
	}
	return m.Logger
}

// EventRecorder is satisfied by *influxdb.Client.
type EventRecorder interface {
	RecordEvent(id screen.Identity, kind, message string)
}

// RecorderNotifier stores stop and failure events as time-series points.
type RecorderNotifier struct {
	Recorder EventRecorder
}

func (r RecorderNotifier) Notify(ev Event) {
	switch ev.Type {
	case EventDisplayStopped, EventDisplayFailure, EventDisplayStarted:
		r.Recorder.RecordEvent(ev.Screen, ev.Type, ev.Message)
	}
}
