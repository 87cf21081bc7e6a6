package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/jittakal/kafeventlake/internal/pipeline"
)

// EventHandler handles one raw JSON event.
type EventHandler interface {
	HandleJSON(ctx context.Context, data []byte) (pipeline.Result, error)
	// Reject records a request whose body could not be read.
	Reject(ctx context.Context, cause error) error
}

// MetricsCollector defines metrics operations for the ingest API.
type MetricsCollector interface {
	IncHTTPRequests(route string, code int)
	ObserveHTTPDuration(route string, seconds float64)
}

// IngestConfig configures the ingest API.
type IngestConfig struct {
	Port         int
	MaxBodyBytes int64
	Timeout      time.Duration
	// TokenHashes are bcrypt hashes of accepted bearer tokens. Empty
	// disables authentication.
	TokenHashes []string
}

// IngestServer serves POST /v1/events.
type IngestServer struct {
	cfg     IngestConfig
	handler EventHandler
	logger  *slog.Logger
	metrics MetricsCollector
	auth    *tokenVerifier
	router  *chi.Mux
	server  *http.Server
	now     func() time.Time
}

// NewIngestServer builds the ingest router.
func NewIngestServer(cfg IngestConfig, handler EventHandler, logger *slog.Logger, metrics MetricsCollector) *IngestServer {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &IngestServer{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metrics,
		auth:    newTokenVerifier(cfg.TokenHashes),
		router:  chi.NewRouter(),
		now:     time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *IngestServer) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Timeout))
}

func (s *IngestServer) setupRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/events", s.handleEvent)
	})
}

// Handler returns the HTTP handler of the API.
func (s *IngestServer) Handler() http.Handler {
	return s.router
}

// Start begins listening in the background.
func (s *IngestServer) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.cfg.Timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serve(s.server, s.logger)
	return nil
}

// Shutdown drains in-flight requests.
func (s *IngestServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return shutdownAll(ctx, s.logger, s.server)
}

func (s *IngestServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		code, resp := pipeline.NewResponse(pipeline.Result{}, s.handler.Reject(r.Context(), err), s.now())
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		s.writeJSON(w, r, code, resp)
		return
	}

	res, err := s.handler.HandleJSON(r.Context(), body)
	code, resp := pipeline.NewResponse(res, err, s.now())
	if err != nil {
		s.logger.Warn("event rejected",
			"request_id", middleware.GetReqID(r.Context()),
			"event_id", resp.EventID,
			"error_type", resp.ErrorType,
			"status", code,
		)
	}
	s.writeJSON(w, r, code, resp)
}

func (s *IngestServer) writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
}

func (s *IngestServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok || !s.auth.verify(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="kafeventlake"`)
			s.writeJSON(w, r, http.StatusUnauthorized, pipeline.Response{
				EventID:   "unknown",
				Error:     "missing or invalid bearer token",
				ErrorType: "AuthenticationError",
				Timestamp: s.now().UTC().Format(time.RFC3339Nano),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *IngestServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		s.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
		if s.metrics != nil {
			s.metrics.IncHTTPRequests(route, status)
			s.metrics.ObserveHTTPDuration(route, duration.Seconds())
		}
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// tokenVerifier checks bearer tokens against bcrypt hashes, remembering
// tokens that already matched.
type tokenVerifier struct {
	hashes   [][]byte
	verified sync.Map
}

func newTokenVerifier(hashes []string) *tokenVerifier {
	v := &tokenVerifier{}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			v.hashes = append(v.hashes, []byte(h))
		}
	}
	return v
}

func (v *tokenVerifier) enabled() bool { return len(v.hashes) > 0 }

func (v *tokenVerifier) verify(token string) bool {
	if token == "" {
		return false
	}
	key := sha256.Sum256([]byte(token))
	if _, ok := v.verified.Load(key); ok {
		return true
	}
	for _, h := range v.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			v.verified.Store(key, struct{}{})
			return true
		}
	}
	return false
}
