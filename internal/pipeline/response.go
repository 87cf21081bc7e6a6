package pipeline

import (
	"net/http"
	"time"

	"github.com/jittakal/kafeventlake/internal/errors"
)

// Response is the JSON envelope returned to ingest clients.
type Response struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status,omitempty"`
	TableKey  string `json:"table_key,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewResponse translates a handler outcome into an HTTP status and body.
// Validation failures map to 400 and every other failure to 500.
func NewResponse(res Result, err error, now time.Time) (int, Response) {
	ts := now.UTC().Format(time.RFC3339Nano)
	if err == nil {
		return http.StatusOK, Response{
			EventID:   res.EventID,
			Status:    "success",
			TableKey:  res.TableKey,
			Timestamp: ts,
		}
	}

	body := Response{
		EventID:   "unknown",
		Error:     err.Error(),
		ErrorType: string(errors.KindHandler),
		Timestamp: ts,
	}
	status := http.StatusInternalServerError
	if pe, ok := errors.AsPipeline(err); ok {
		body.ErrorType = string(pe.Kind)
		if pe.EventID != "" {
			body.EventID = pe.EventID
		}
		if pe.Kind == errors.KindValidation {
			status = http.StatusBadRequest
		}
	}
	return status, body
}
