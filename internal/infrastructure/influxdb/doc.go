// Package influxdb records display-loop telemetry in InfluxDB v2.
//
// Each display cycle becomes one display_cycle point (screen tag,
// duration_ms and ok fields) and each loop failure a display_event point.
// Writes go through the client's non-blocking batched write API; write
// errors surface asynchronously through SetOnError.
//
// The package is optional: Connect returns ErrDisabled when influxdb.enabled
// is false and callers simply run without a recorder.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	case err != nil:
//	    log.Warn("influxdb unavailable", "error", err)
//	default:
//	    defer client.Close()
//	    displayCfg.Recorder = client
//	}
package influxdb
