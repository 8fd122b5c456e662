package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/pipeline"
	"github.com/neogan74/tracelog/internal/queue"
)

type fixedStats pipeline.Stats

func (s fixedStats) Stats() pipeline.Stats { return pipeline.Stats(s) }

func TestHealthHandler_Check(t *testing.T) {
	app := fiber.New()

	stats := fixedStats{
		RemoteEnabled:  true,
		BreakerState:   "closed",
		RemoteFailures: 2,
		Streams: []queue.Stats{
			{Stream: event.StreamApplication, Dropped: 3},
			{Stream: event.StreamError, Dropped: 1},
		},
	}
	healthHandler := NewHealthHandler(stats, "1.0.0-test")
	app.Get("/health", healthHandler.Check)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req, -1)

	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", health.Status)
	}

	if health.Version != "1.0.0-test" {
		t.Errorf("Expected version '1.0.0-test', got '%s'", health.Version)
	}

	if health.Logging.Dropped != 4 {
		t.Errorf("Expected 4 dropped events, got %d", health.Logging.Dropped)
	}

	if health.System.Goroutines <= 0 {
		t.Error("Expected positive goroutine count")
	}
}

func TestHealthHandler_DegradedWhenBreakerOpen(t *testing.T) {
	app := fiber.New()
	app.Get("/health", NewHealthHandler(fixedStats{RemoteEnabled: true, BreakerState: "open"}, "v").Check)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("Expected status 'degraded', got '%s'", health.Status)
	}
}

func TestHealthHandler_Liveness(t *testing.T) {
	app := fiber.New()
	app.Get("/health/live", NewHealthHandler(fixedStats{}, "v").Liveness)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/live", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["status"] != "alive" {
		t.Errorf("Expected status 'alive', got '%v'", result["status"])
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	app := fiber.New()
	stats := fixedStats{
		RemoteEnabled:   true,
		RemoteDelivered: 40,
		Streams:         []queue.Stats{{Stream: event.StreamAudit, Depth: 2, Delivered: 40}},
	}
	app.Get("/api/v1/logging/stats", NewHealthHandler(stats, "v").Stats)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/logging/stats", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	var got pipeline.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.RemoteDelivered != 40 || len(got.Streams) != 1 || got.Streams[0].Depth != 2 {
		t.Errorf("Unexpected stats: %+v", got)
	}
}
