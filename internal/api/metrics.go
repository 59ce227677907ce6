package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          ConnMetrics     `json:"mqtt"`
	InfluxDB      ConnMetrics     `json:"influxdb"`
	Devices       DeviceMetrics   `json:"devices"`
	Queue         queueStatus     `json:"queue"`
	Toggles       map[string]int  `json:"toggles"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ConnMetrics reports an optional backend connection.
type ConnMetrics struct {
	Enabled       bool   `json:"enabled"`
	Connected     bool   `json:"connected"`
	WriteFailures uint64 `json:"write_failures,omitempty"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total      int            `json:"total"`
	ByProtocol map[string]int `json:"by_protocol"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func connMetrics(c ConnectionStatus) ConnMetrics {
	if c == nil {
		return ConnMetrics{}
	}
	m := ConnMetrics{Enabled: true, Connected: c.IsConnected()}
	if f, ok := c.(interface{ WriteFailures() uint64 }); ok {
		m.WriteFailures = f.WriteFailures()
	}
	return m
}

// handleMetrics returns runtime, queue, toggle and backend statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT:     connMetrics(s.mqtt),
		InfluxDB: connMetrics(s.influx),
		Queue:    s.queueStatus(),
		Toggles:  make(map[string]int),
	}

	regStats := s.registry.GetStats()
	metrics.Devices = DeviceMetrics{
		Total:      regStats.TotalDevices,
		ByProtocol: make(map[string]int, len(regStats.ByProtocol)),
	}
	for p, count := range regStats.ByProtocol {
		metrics.Devices.ByProtocol[string(p)] = count
	}

	for key, bit := range s.dispatcher.Toggles().Snapshot() {
		metrics.Toggles[key] = int(bit)
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
