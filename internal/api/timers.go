package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hifilink/hifilink/internal/audit"
	"github.com/hifilink/hifilink/internal/timer"
)

// timersAvailable writes a 503 when timers are disabled.
func (s *Server) timersAvailable(w http.ResponseWriter) bool {
	if s.timers == nil || s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "timers are disabled")
		return false
	}
	return true
}

// handleListTimers returns all timers ordered by trigger time.
func (s *Server) handleListTimers(w http.ResponseWriter, r *http.Request) {
	if !s.timersAvailable(w) {
		return
	}
	timers, err := s.timers.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list timers", "error", err)
		writeInternalError(w, "failed to list timers")
		return
	}
	if timers == nil {
		timers = []timer.Timer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"timers": timers, "count": len(timers)})
}

// handleCreateTimer stores a new timer.
func (s *Server) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	if !s.timersAvailable(w) {
		return
	}
	var req timer.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t, err := req.Build(time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.timers.Create(r.Context(), t); err != nil {
		s.logger.Error("failed to create timer", "error", err)
		writeErr(w, err)
		return
	}

	s.logger.Info("timer created",
		"timer_id", t.ID,
		"type", string(t.Type),
		"trigger_at", t.TriggerAt.Format(time.RFC3339),
		"actions", len(t.Actions),
	)
	s.auditLog(r, audit.ActionTimerCreate, "", http.StatusCreated, map[string]any{
		"timer_id": t.ID,
		"type":     string(t.Type),
		"label":    t.Label,
		"actions":  len(t.Actions),
	})
	writeJSON(w, http.StatusCreated, t)
}

// handleGetTimer returns a single timer.
func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	if !s.timersAvailable(w) {
		return
	}
	t, err := s.timers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleDeleteTimer removes a timer.
func (s *Server) handleDeleteTimer(w http.ResponseWriter, r *http.Request) {
	if !s.timersAvailable(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.timers.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	s.logger.Info("timer deleted", "timer_id", id)
	s.auditLog(r, audit.ActionTimerDelete, "", http.StatusNoContent, map[string]any{"timer_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// handleFireTimer runs a stored timer now without changing its schedule.
func (s *Server) handleFireTimer(w http.ResponseWriter, r *http.Request) {
	if !s.timersAvailable(w) {
		return
	}
	firing, err := s.scheduler.Fire(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, firing)
}

// handleTestTimer runs an unsaved action list now. Per-action delays still
// apply between actions.
func (s *Server) handleTestTimer(w http.ResponseWriter, r *http.Request) {
	if !s.timersAvailable(w) {
		return
	}
	var req timer.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if _, err := req.Build(time.Now()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.FireActions(r.Context(), req.Label, req.Actions))
}
