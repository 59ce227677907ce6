package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hifilink/hifilink/internal/audit"
	"github.com/hifilink/hifilink/internal/queue"
)

// auditLog queues an audit entry for the request. Transmissions are recorded
// by the writer itself; this covers changes made through the API.
func (s *Server) auditLog(r *http.Request, action, device string, status int, details map[string]any) {
	if s.audit == nil {
		return
	}
	subject, _ := r.Context().Value(ctxKeySubject).(string)
	s.audit.Log(audit.Entry{
		Action:  action,
		Device:  device,
		Source:  queue.SourceAPI,
		Subject: subject,
		Status:  status,
		Details: details,
	})
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters:
//   - action: send, setup, device.update, device.delete, timer.create, timer.delete
//   - device: device name
//   - source: api, mqtt, timer, cli
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	repo := s.audit.Repository()
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Device: q.Get("device"),
		Source: q.Get("source"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "Invalid 'since' value")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := repo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
