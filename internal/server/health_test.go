package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveness  bool
	readiness bool
	healthy   bool
	status    map[string]string
}

func (m *mockHealthChecker) Liveness() bool { return m.liveness }
func (m *mockHealthChecker) Readiness(ctx context.Context) bool { return m.readiness }
func (m *mockHealthChecker) IsHealthy() bool { return m.healthy }
func (m *mockHealthChecker) GetStatus() map[string]string { return m.status }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthHandlers(t *testing.T) {
	tests := []struct {
		name       string
		checker    *mockHealthChecker
		handler    func(HealthChecker, *slog.Logger) http.HandlerFunc
		wantCode   int
		wantStatus string
	}{
		{"alive", &mockHealthChecker{liveness: true}, LivenessHandler, http.StatusOK, "alive"},
		{"not alive", &mockHealthChecker{}, LivenessHandler, http.StatusServiceUnavailable, "not alive"},
		{"ready", &mockHealthChecker{readiness: true}, ReadinessHandler, http.StatusOK, "ready"},
		{
			name: "not ready",
			checker: &mockHealthChecker{status: map[string]string{
				"catalog": "connection refused",
			}},
			handler:    ReadinessHandler,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(tt.checker, discardLogger())(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}
			var response HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
			if response.Timestamp == "" {
				t.Error("timestamp should be set")
			}
		})
	}
}

func TestComponents_Readiness(t *testing.T) {
	c := NewComponents()
	catalogErr := errors.New("catalog unavailable")
	failing := true
	c.Register("catalog", func(ctx context.Context) error {
		if failing {
			return catalogErr
		}
		return nil
	})
	c.Register("ingest", func(ctx context.Context) error { return nil })

	if !c.Liveness() {
		t.Error("new checker should be alive")
	}
	if got := c.GetStatus()["catalog"]; got != "unknown" {
		t.Errorf("status before first probe = %s, want unknown", got)
	}

	if c.Readiness(context.Background()) {
		t.Error("Readiness() = true with a failing probe")
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() = true after failed readiness")
	}
	status := c.GetStatus()
	if status["catalog"] != "catalog unavailable" || status["ingest"] != "ok" {
		t.Errorf("GetStatus() = %v", status)
	}

	failing = false
	if !c.Readiness(context.Background()) {
		t.Error("Readiness() = false with passing probes")
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() = false after passing readiness")
	}

	c.MarkStopping()
	if c.Liveness() || c.Readiness(context.Background()) || c.IsHealthy() {
		t.Error("stopping checker should report not alive and not ready")
	}
}

func TestComponents_StatusIsCopy(t *testing.T) {
	c := NewComponents()
	c.Register("a", func(ctx context.Context) error { return nil })
	status := c.GetStatus()
	status["a"] = "tampered"
	if c.GetStatus()["a"] != "unknown" {
		t.Error("GetStatus() must return a copy")
	}
}
