// Package server implements the HTTP surfaces of the service: the event
// ingest API plus health check and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Config holds ports and paths of the operational servers.
type Config struct {
	HealthPort     int
	LivenessPath   string
	ReadinessPath  string
	MetricsEnabled bool
	MetricsPort    int
	MetricsPath    string
}

func (c Config) withDefaults() Config {
	if c.LivenessPath == "" {
		c.LivenessPath = "/health/live"
	}
	if c.ReadinessPath == "" {
		c.ReadinessPath = "/health/ready"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	return c
}

// Server represents the HTTP server for health and metrics.
type Server struct {
	healthServer  *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates a new HTTP server. The metrics server is only built
// when metrics are enabled.
func NewServer(cfg Config, healthChecker HealthChecker, registry *prometheus.Registry, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc(cfg.LivenessPath, LivenessHandler(healthChecker, logger))
	healthMux.HandleFunc(cfg.ReadinessPath, ReadinessHandler(healthChecker, logger))

	s := &Server{
		healthServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
			Handler:      healthMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}

	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		s.metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return s
}

func (s *Server) servers() []*http.Server {
	out := []*http.Server{s.healthServer}
	if s.metricsServer != nil {
		out = append(out, s.metricsServer)
	}
	return out
}

// Start starts the HTTP servers in the background.
func (s *Server) Start() error {
	for _, srv := range s.servers() {
		serve(srv, s.logger)
	}
	return nil
}

// Shutdown gracefully shuts down the servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")
	return shutdownAll(ctx, s.logger, s.servers()...)
}

func serve(srv *http.Server, logger *slog.Logger) {
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "addr", srv.Addr, "error", err)
		}
	}()
}

func shutdownAll(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}
	return lastErr
}
