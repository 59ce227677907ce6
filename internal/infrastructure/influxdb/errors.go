package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "metrics off", not as a failure.
	ErrDisabled = errors.New("influxdb: metrics disabled")

	// ErrUnreachable is returned when the server did not answer the startup
	// ping or reported itself unhealthy.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned by HealthCheck once the client has been closed,
	// or for a zero Client that never connected.
	ErrClosed = errors.New("influxdb: client closed")
)
