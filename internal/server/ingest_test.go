package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/pipeline"
)

type stubEventHandler struct {
	res      pipeline.Result
	err      error
	calls    int
	body     string
	rejected []error
}

func (h *stubEventHandler) HandleJSON(ctx context.Context, data []byte) (pipeline.Result, error) {
	h.calls++
	h.body = string(data)
	return h.res, h.err
}

func (h *stubEventHandler) Reject(ctx context.Context, cause error) error {
	h.rejected = append(h.rejected, cause)
	return errors.New(errors.KindValidation, errors.StageDecode, cause)
}

type recordingMetrics struct {
	mu        sync.Mutex
	requests  map[string]int
	durations int
}

func (m *recordingMetrics) IncHTTPRequests(route string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = make(map[string]int)
	}
	m.requests[fmt.Sprintf("%s %d", route, code)]++
}

func (m *recordingMetrics) ObserveHTTPDuration(route string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func newTestIngest(cfg IngestConfig, h EventHandler, m MetricsCollector) *IngestServer {
	s := NewIngestServer(cfg, h, discardLogger(), m)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func postEvent(s *IngestServer, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) pipeline.Response {
	t.Helper()
	var resp pipeline.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestIngest_HandleEvent(t *testing.T) {
	tests := []struct {
		name          string
		res           pipeline.Result
		err           error
		wantCode      int
		wantEventID   string
		wantErrorType string
	}{
		{
			name:        "success",
			res:         pipeline.Result{EventID: "e1", TableKey: "events_click"},
			wantCode:    http.StatusOK,
			wantEventID: "e1",
		},
		{
			name: "validation failure",
			err: errors.New(errors.KindValidation, errors.StageValidate,
				fmt.Errorf("missing user_id")).WithEvent("e2", "click"),
			wantCode:      http.StatusBadRequest,
			wantEventID:   "e2",
			wantErrorType: "ValidationError",
		},
		{
			name:          "write failure",
			err:           errors.New(errors.KindWrite, errors.StageWriteTable, fmt.Errorf("disk full")),
			wantCode:      http.StatusInternalServerError,
			wantEventID:   "unknown",
			wantErrorType: "WriteError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &stubEventHandler{res: tt.res, err: tt.err}
			s := newTestIngest(IngestConfig{}, h, nil)

			w := postEvent(s, `{"event_id":"e1"}`, "")
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if h.body != `{"event_id":"e1"}` {
				t.Errorf("handler body = %q", h.body)
			}
			resp := decodeResponse(t, w)
			if resp.EventID != tt.wantEventID {
				t.Errorf("event_id = %s, want %s", resp.EventID, tt.wantEventID)
			}
			if resp.ErrorType != tt.wantErrorType {
				t.Errorf("error_type = %s, want %s", resp.ErrorType, tt.wantErrorType)
			}
			if resp.Timestamp != "2024-03-01T12:00:00Z" {
				t.Errorf("timestamp = %s", resp.Timestamp)
			}
			if w.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %s", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	h := &stubEventHandler{}
	s := newTestIngest(IngestConfig{MaxBodyBytes: 8}, h, nil)

	w := postEvent(s, `{"event_id":"0123456789"}`, "")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if h.calls != 0 {
		t.Errorf("handler called %d times, want 0", h.calls)
	}
	if len(h.rejected) != 1 {
		t.Fatalf("rejected %d bodies, want 1", len(h.rejected))
	}
	if resp := decodeResponse(t, w); resp.ErrorType != "ValidationError" {
		t.Errorf("error_type = %s, want ValidationError", resp.ErrorType)
	}
}

func TestIngest_MethodNotAllowed(t *testing.T) {
	s := newTestIngest(IngestConfig{}, &stubEventHandler{}, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestIngest_BearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic czNjcmV0", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret", http.StatusOK},
		{"scheme is case insensitive", "bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &stubEventHandler{res: pipeline.Result{EventID: "e1"}}
			s := newTestIngest(IngestConfig{TokenHashes: []string{string(hash), " "}}, h, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized {
				if h.calls != 0 {
					t.Error("handler must not run for unauthenticated requests")
				}
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate header")
				}
			}
		})
	}
}

func TestTokenVerifier(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("token-a"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}

	v := newTokenVerifier([]string{string(hash)})
	if !v.enabled() {
		t.Fatal("verifier with hashes should be enabled")
	}
	for i := 0; i < 2; i++ {
		if !v.verify("token-a") {
			t.Errorf("verify(token-a) attempt %d = false", i)
		}
	}
	if v.verify("token-b") || v.verify("") {
		t.Error("verify accepted an unknown token")
	}
	if newTokenVerifier(nil).enabled() {
		t.Error("verifier without hashes should be disabled")
	}
}

func TestIngest_Metrics(t *testing.T) {
	m := &recordingMetrics{}
	s := newTestIngest(IngestConfig{}, &stubEventHandler{res: pipeline.Result{EventID: "e1"}}, m)

	postEvent(s, `{}`, "")
	postEvent(s, `{}`, "")

	m.mu.Lock()
	defer m.mu.Unlock()
	if got := m.requests["/v1/events 200"]; got != 2 {
		t.Errorf("requests[/v1/events 200] = %d, want 2 (all: %v)", got, m.requests)
	}
	if m.durations != 2 {
		t.Errorf("durations = %d, want 2", m.durations)
	}
}

func TestIngest_ShutdownWithoutStart(t *testing.T) {
	s := newTestIngest(IngestConfig{}, &stubEventHandler{}, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
