package influxdb

import "errors"

var (
	// ErrDisabled means influxdb.enabled is false; run without telemetry.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	ErrConnectionFailed = errors.New("influxdb: server unreachable")
	ErrNotConnected     = errors.New("influxdb: client closed")
	ErrUnhealthy        = errors.New("influxdb: server reports unhealthy")
)
