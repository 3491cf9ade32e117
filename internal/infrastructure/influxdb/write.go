package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Measurement names.
const (
	MeasurementCycle = "display_cycle"
	MeasurementEvent = "display_event"
)

// RecordCycle writes one display_cycle point. It satisfies display.Recorder.
func (c *Client) RecordCycle(id screen.Identity, elapsed time.Duration, err error) {
	fields := map[string]any{
		"duration_ms": float64(elapsed.Microseconds()) / 1000,
		"ok":          err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.WritePoint(MeasurementCycle, map[string]string{"screen": string(id)}, fields, time.Now())
}

// RecordEvent writes a display_event point, e.g. a stop or an exhausted
// retry budget.
func (c *Client) RecordEvent(id screen.Identity, kind, message string) {
	c.WritePoint(MeasurementEvent,
		map[string]string{"screen": string(id), "type": kind},
		map[string]any{"message": message},
		time.Now())
}

// WritePoint queues an arbitrary point. Dropped silently after Close.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if c.closed.Load() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
