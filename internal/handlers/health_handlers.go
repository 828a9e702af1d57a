package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency the health endpoints probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	checks    map[string]Pinger
	critical  map[string]bool
	version   string
	startedAt time.Time
	timeout   time.Duration
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(version string) *HealthHandlers {
	return &HealthHandlers{
		checks:    make(map[string]Pinger),
		critical:  make(map[string]bool),
		version:   version,
		startedAt: time.Now(),
		timeout:   2 * time.Second,
	}
}

// AddCheck registers a dependency. Critical dependencies gate readiness.
func (h *HealthHandlers) AddCheck(name string, p Pinger, critical bool) *HealthHandlers {
	h.checks[name] = p
	h.critical[name] = critical
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Services   map[string]string `json:"services"`
	Uptime     string            `json:"uptime"`
	Version    string            `json:"version"`
	Goroutines int               `json:"goroutines"`
}

// HealthCheck godoc
// @Summary  Dependency health
// @Tags     ops
// @Produce  json
// @Success  200  {object}  HealthStatus
// @Success  206  {object}  HealthStatus
// @Router   /health [get]
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	health := &HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Services:   make(map[string]string, len(h.checks)),
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Version:    h.version,
		Goroutines: runtime.NumGoroutine(),
	}

	for name, err := range h.probe(c.Request().Context()) {
		if err != nil {
			health.Services[name] = "unhealthy"
			health.Status = "degraded"
		} else {
			health.Services[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}

	return c.JSON(statusCode, health)
}

// ReadinessCheck godoc
// @Summary  Readiness probe
// @Tags     ops
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /health/ready [get]
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	for name, err := range h.probe(c.Request().Context()) {
		if err != nil && h.critical[name] {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "not_ready",
				"message": name + " unavailable",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandlers) probe(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]error, len(h.checks))
	for name, p := range h.checks {
		results[name] = p.Ping(ctx)
	}
	return results
}
