// Package history keeps a local record of display events in SQLite.
//
// InfluxDB is optional, so failures and session changes are also written
// to the display_events table where the API can list them. Recording is
// asynchronous: Recorder.Notify only queues, and Recorder.Run drains the
// queue and prunes entries older than the retention period.
package history
