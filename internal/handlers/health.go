package handlers

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/pipeline"
)

// StatsSource reports pipeline counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Uptime    string        `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
	Logging   LoggingHealth `json:"logging"`
	System    SystemHealth  `json:"system"`
}

type LoggingHealth struct {
	RemoteEnabled  bool   `json:"remote_enabled"`
	BreakerState   string `json:"breaker_state,omitempty"`
	RemoteFailures int64  `json:"remote_failures"`
	Dropped        int64  `json:"dropped"`
}

type SystemHealth struct {
	Goroutines  int    `json:"goroutines"`
	MemoryAlloc uint64 `json:"memory_alloc_bytes"`
	MemorySys   uint64 `json:"memory_sys_bytes"`
	NumGC       uint32 `json:"num_gc"`
}

// HealthHandler handles health check operations
type HealthHandler struct {
	stats     StatsSource
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(stats StatsSource, version string) *HealthHandler {
	return &HealthHandler{
		stats:     stats,
		startTime: time.Now(),
		version:   version,
	}
}

// Check returns the health status of the service. A degraded logging path
// is reported but never fails the check.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	st := h.stats.Stats()
	var dropped int64
	for _, q := range st.Streams {
		dropped += q.Dropped
	}

	status := HealthStatus{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: event.Now(),
		Logging: LoggingHealth{
			RemoteEnabled:  st.RemoteEnabled,
			BreakerState:   st.BreakerState,
			RemoteFailures: st.RemoteFailures,
			Dropped:        dropped,
		},
		System: SystemHealth{
			Goroutines:  runtime.NumGoroutine(),
			MemoryAlloc: m.Alloc,
			MemorySys:   m.Sys,
			NumGC:       m.NumGC,
		},
	}
	if st.BreakerState == "open" {
		status.Status = "degraded"
	}

	return c.JSON(status)
}

// Liveness is a simple liveness probe
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "alive",
		"timestamp": event.Now(),
	})
}

// Stats returns per-stream queue and remote delivery counters.
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.stats.Stats())
}
