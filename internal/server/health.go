package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeHealth(w http.ResponseWriter, code int, body HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

// Probe reports whether a component can serve traffic.
type Probe func(ctx context.Context) error

// Components is a HealthChecker over named component probes. The process
// is alive until MarkStopping is called; it is ready when every probe
// passes.
type Components struct {
	mu       sync.RWMutex
	probes   map[string]Probe
	last     map[string]string
	stopping bool
}

// Ensure implementation satisfies interface at compile time.
var _ HealthChecker = (*Components)(nil)

// NewComponents creates an empty checker.
func NewComponents() *Components {
	return &Components{
		probes: make(map[string]Probe),
		last:   make(map[string]string),
	}
}

// Register adds or replaces the probe for a component.
func (c *Components) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
	c.last[name] = "unknown"
}

// MarkStopping flips liveness and readiness to false.
func (c *Components) MarkStopping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopping = true
}

// Liveness implements HealthChecker.
func (c *Components) Liveness() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.stopping
}

// Readiness runs every probe and records its outcome.
func (c *Components) Readiness(ctx context.Context) bool {
	c.mu.RLock()
	if c.stopping {
		c.mu.RUnlock()
		return false
	}
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	probes := c.probes
	c.mu.RUnlock()
	sort.Strings(names)

	ready := true
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := probes[name](ctx); err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	c.mu.Lock()
	for name, res := range results {
		c.last[name] = res
	}
	c.mu.Unlock()
	return ready
}

// IsHealthy reports the outcome of the last readiness run.
func (c *Components) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopping {
		return false
	}
	for _, res := range c.last {
		if res != "ok" {
			return false
		}
	}
	return true
}

// GetStatus returns a copy of the last probe results.
func (c *Components) GetStatus() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}
