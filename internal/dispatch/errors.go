package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/protocol"
)

var (
	// ErrProtocolUnsupported is returned for devices whose protocol has no encoder.
	ErrProtocolUnsupported = errors.New("dispatch: protocol not supported")

	// ErrCaptureFailed is returned when learning could not record a code.
	ErrCaptureFailed = errors.New("dispatch: capture failed")

	// ErrInvalidRequest is returned for missing or malformed request fields.
	ErrInvalidRequest = errors.New("dispatch: invalid request")
)

// StatusFor maps an error from Send or Setup to an HTTP status code.
// Anything unrecognised, including driver failures, is a 500.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, protocol.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrMalformedConfig),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrSetupUnsupported):
		return http.StatusMethodNotAllowed
	case errors.Is(err, device.ErrProtocolImmutable):
		return http.StatusConflict
	case errors.Is(err, ErrProtocolUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
