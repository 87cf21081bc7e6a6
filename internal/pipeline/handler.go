// Package pipeline wires validation, normalization and table writes into a
// single per-event entry point.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// Validator checks mandatory fields.
type Validator interface {
	Validate(ctx context.Context, e event.Value) (event.Value, error)
}

// Builder normalizes an event into a record.
type Builder interface {
	Build(ctx context.Context, e event.Value) (event.Record, error)
}

// Writer appends a record and returns the table it went to.
type Writer interface {
	Write(ctx context.Context, rec event.Record) (string, error)
}

// MetricsCollector defines metrics operations for the handler.
type MetricsCollector interface {
	IncEventsProcessed(eventType, status string)
	IncStageFailures(kind, stage string)
	ObserveProcessingDuration(eventType string, seconds float64)
}

// Result describes a successfully ingested event.
type Result struct {
	EventID     string
	TableKey    string
	ProcessedAt time.Time
}

// Handler runs one event through validation, normalization and the table
// write. Every failure it returns is a *errors.PipelineError that has
// already been recorded.
type Handler struct {
	validator Validator
	builder   Builder
	writer    Writer
	sink      errorsink.Recorder
	logger    *slog.Logger
	metrics   MetricsCollector
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides the clock used for Result.ProcessedAt.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a Handler.
func NewHandler(v Validator, b Builder, w Writer, sink errorsink.Recorder, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		validator: v,
		builder:   b,
		writer:    w,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleJSON decodes data and handles the resulting event. Undecodable
// input is a ValidationError at the decode stage.
func (h *Handler) HandleJSON(ctx context.Context, data []byte) (Result, error) {
	v, err := event.Decode(data)
	if err != nil {
		return Result{}, h.reject(ctx, err, event.StringValue(string(data)))
	}
	return h.Handle(ctx, v)
}

// Reject records input that never reached decoding, such as an unreadable
// or oversized request body, and returns it as a ValidationError at the
// decode stage.
func (h *Handler) Reject(ctx context.Context, cause error) error {
	return h.reject(ctx, cause, event.NullValue())
}

func (h *Handler) reject(ctx context.Context, cause error, raw event.Value) error {
	pe := errors.New(errors.KindValidation, errors.StageDecode, cause)
	h.sink.Record(ctx, errorsink.FromError(pe, raw))
	h.observe("", pe, time.Now())
	return pe
}

// Handle validates, normalizes and writes one event.
func (h *Handler) Handle(ctx context.Context, raw event.Value) (res Result, err error) {
	start := time.Now()
	id, typ := event.Identity(raw)

	defer func() {
		if r := recover(); r != nil {
			pe := errors.New(errors.KindHandler, errors.StageHandle, fmt.Errorf("panic: %v", r)).WithEvent(id, typ)
			f := errorsink.FromError(pe, raw)
			f.Stack = string(debug.Stack())
			h.sink.Record(ctx, f)
			res, err = Result{}, pe
		}
		h.observe(typ, err, start)
	}()

	res, err = h.run(ctx, raw)
	if err != nil {
		if _, ok := errors.AsPipeline(err); !ok {
			pe := errors.New(errors.KindHandler, errors.StageHandle, err).WithEvent(id, typ)
			h.sink.Record(ctx, errorsink.FromError(pe, raw))
			err = pe
		}
		h.logger.Warn("event rejected",
			"event_id", id,
			"event_type", typ,
			"error", err,
		)
		return Result{}, err
	}

	h.logger.Info("event processed",
		"event_id", res.EventID,
		"table", res.TableKey,
	)
	return res, nil
}

func (h *Handler) run(ctx context.Context, raw event.Value) (Result, error) {
	valid, err := h.validator.Validate(ctx, raw)
	if err != nil {
		return Result{}, err
	}

	rec, err := h.builder.Build(ctx, valid)
	if err != nil {
		return Result{}, err
	}

	tableKey, err := h.writer.Write(ctx, rec)
	if err != nil {
		return Result{}, err
	}

	return Result{
		EventID:     rec.EventID(),
		TableKey:    tableKey,
		ProcessedAt: h.now().UTC(),
	}, nil
}

func (h *Handler) observe(eventType string, err error, start time.Time) {
	if h.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		if pe, ok := errors.AsPipeline(err); ok {
			h.metrics.IncStageFailures(string(pe.Kind), pe.Stage)
		}
	}
	if eventType == "" {
		eventType = "unknown"
	}
	h.metrics.IncEventsProcessed(eventType, status)
	h.metrics.ObserveProcessingDuration(eventType, time.Since(start).Seconds())
}
