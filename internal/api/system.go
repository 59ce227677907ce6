package api

import (
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hifilink/hifilink/internal/queue"
)

// queueStatus is the queue section of /health and /queue.
type queueStatus struct {
	Enabled  bool         `json:"enabled"`
	Depth    int          `json:"depth"`
	Capacity int          `json:"capacity"`
	Worker   *queue.Stats `json:"worker,omitempty"`
}

func (s *Server) queueStatus() queueStatus {
	if s.queue == nil {
		return queueStatus{}
	}
	st := queueStatus{
		Enabled:  true,
		Depth:    s.queue.Depth(),
		Capacity: s.queue.Capacity(),
	}
	if s.worker != nil {
		stats := s.worker.Stats()
		st.Worker = &stats
	}
	return st
}

// handleHealth reports liveness, queue depth and worker counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			status = "degraded"
		}
	}
	qs := s.queueStatus()
	if qs.Worker != nil && !qs.Worker.Running {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"queue":          qs,
	})
}

// handleInfo describes the hub: name, version and what it can drive.
func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":            s.fullCfg.Device.Name,
		"version":         s.version,
		"protocols":       s.dispatcher.Protocols(),
		"default_carrier": s.fullCfg.IR.TxFreq,
		"shared_toggle":   s.fullCfg.IR.SharedToggle,
		"devices":         s.registry.GetStats(),
	})
}

// handleConfig returns the effective configuration with secrets blanked,
// keyed as in config.yaml.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	redacted := s.fullCfg.Redacted()
	raw, err := yaml.Marshal(&redacted)
	if err != nil {
		writeInternalError(w, "failed to encode config")
		return
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		writeInternalError(w, "failed to encode config")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleQueue reports the queue and worker state.
func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queueStatus())
}
