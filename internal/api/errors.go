package api

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"

	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/queue"
	"github.com/hifilink/hifilink/internal/timer"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeQueueFull      = "queue_full"
	ErrCodeNotImplemented = "not_implemented"
	ErrCodeUnavailable    = "unavailable"
)

// codeFor names the error code for an HTTP status.
func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllow
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeQueueFull
	case http.StatusNotImplemented:
		return ErrCodeNotImplemented
	case http.StatusServiceUnavailable:
		return ErrCodeUnavailable
	default:
		return ErrCodeInternal
	}
}

// statusFor extends dispatch.StatusFor with the errors of the packages the
// dispatcher does not know about.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, queue.ErrInvalidJob),
		errors.Is(err, timer.ErrInvalidTimer):
		return http.StatusBadRequest
	case errors.Is(err, timer.ErrTimerNotFound):
		return http.StatusNotFound
	case errors.Is(err, timer.ErrTimerExists):
		return http.StatusConflict
	default:
		return dispatch.StatusFor(err)
	}
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeErr maps err to a status and writes it.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeError(w, status, codeFor(status), err.Error())
}

// writeBody writes a dispatcher or queue body. Failure bodies keep their
// "error" text and extra fields and gain the status, code and message of Error.
func writeBody(w http.ResponseWriter, status int, body map[string]any) {
	if status < http.StatusBadRequest {
		writeJSON(w, status, body)
		return
	}
	out := make(map[string]any, len(body)+3)
	maps.Copy(out, body)
	msg, _ := body["error"].(string) //nolint:errcheck // missing text falls back below
	if msg == "" {
		msg = http.StatusText(status)
		out["error"] = msg
	}
	out["status"] = status
	out["code"] = codeFor(status)
	out["message"] = msg
	writeJSON(w, status, out)
}

// writeResult writes a dispatcher Result.
func writeResult(w http.ResponseWriter, res dispatch.Result) {
	writeBody(w, res.Status, res.Body)
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
