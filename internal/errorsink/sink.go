// Package errorsink records pipeline failures into the error table.
//
// Recording is best effort: the sink never returns an error and never
// panics. When the error table cannot be reached the failure is logged to
// stderr instead.
package errorsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/pkg/event"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// DefaultTable is the name of the error table.
const DefaultTable = "error_logs"

// Recorder captures pipeline failures.
type Recorder interface {
	Record(ctx context.Context, f Failure)
}

// Failure is one failure to be recorded.
type Failure struct {
	Kind      apperrors.Kind
	Stage     string
	Err       error
	EventID   string
	EventType string
	// Event is the raw event; a null Value leaves event_data empty.
	Event event.Value
	// Stack overrides the trace derived from Err.
	Stack string
}

// FromError builds a Failure from a pipeline error and the raw event.
func FromError(pe *apperrors.PipelineError, raw event.Value) Failure {
	return Failure{
		Kind:      pe.Kind,
		Stage:     pe.Stage,
		Err:       pe.Err,
		EventID:   pe.EventID,
		EventType: pe.EventType,
		Event:     raw,
	}
}

// MetricsCollector defines metrics operations for the error sink.
type MetricsCollector interface {
	IncErrorRecords(errorType, stage, status string)
}

// Sink appends error records to the error table through a catalog.
type Sink struct {
	catalog  table.Catalog
	table    string
	logger   *slog.Logger
	fallback *slog.Logger
	metrics  MetricsCollector
	now      func() time.Time
	newID    func() string
}

var _ Recorder = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithTable overrides the error table name.
func WithTable(name string) Option {
	return func(s *Sink) { s.table = name }
}

// WithClock overrides the capture clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// WithIDGenerator overrides the error id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Sink) { s.newID = gen }
}

// WithFallbackLogger overrides the logger used when the error table is
// unreachable.
func WithFallbackLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.fallback = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(s *Sink) { s.metrics = m }
}

// New creates a Sink writing through catalog.
func New(catalog table.Catalog, logger *slog.Logger, opts ...Option) *Sink {
	s := &Sink{
		catalog:  catalog,
		table:    DefaultTable,
		logger:   logger,
		fallback: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type recordingKey struct{}

// Record persists one error record. It never fails; problems writing the
// record are reported on the fallback logger together with the original
// error message.
func (s *Sink) Record(ctx context.Context, f Failure) {
	defer func() {
		if r := recover(); r != nil {
			s.fallback.Error("failed to record error",
				"cause", fmt.Sprint(r),
				"original_error", message(f.Err),
				"stage", f.Stage,
			)
		}
	}()

	rec := s.build(f)

	// A failure raised while an error record is being written is not fed
	// back into the error table.
	if ctx.Value(recordingKey{}) != nil {
		s.fallbackNotice(rec, errors.New("nested error record"))
		s.observe(rec, "fallback")
		return
	}

	if err := s.write(context.WithValue(ctx, recordingKey{}, true), rec); err != nil {
		s.fallbackNotice(rec, err)
		s.observe(rec, "fallback")
		return
	}

	s.logger.Debug("error record written",
		"error_id", rec.ErrorID,
		"error_type", rec.ErrorType,
		"stage", rec.ProcessingStage,
		"event_id", deref(rec.EventID),
	)
	s.observe(rec, "written")
}

func (s *Sink) write(ctx context.Context, rec *event.ErrorRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while writing error record: %v", r)
		}
	}()

	tbl, err := s.catalog.LoadTable(ctx, s.table)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", s.table, err)
	}
	if err := tbl.Append(ctx, table.NewBatch(rec.ToRecord())); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) build(f Failure) *event.ErrorRecord {
	rec := &event.ErrorRecord{
		ErrorID:         s.newID(),
		Timestamp:       s.now().UTC(),
		ErrorType:       string(f.Kind),
		ErrorMessage:    message(f.Err),
		StackTrace:      f.Stack,
		ProcessingStage: f.Stage,
	}
	if rec.StackTrace == "" {
		rec.StackTrace = Trace(f.Err)
	}
	if f.EventID != "" {
		rec.EventID = &f.EventID
	}
	if f.EventType != "" {
		rec.EventType = &f.EventType
	}
	if !f.Event.IsNull() {
		if b, err := f.Event.MarshalJSON(); err == nil {
			data := string(b)
			rec.EventData = &data
		}
	}
	return rec
}

func (s *Sink) fallbackNotice(rec *event.ErrorRecord, cause error) {
	s.fallback.Error("failed to record error",
		"cause", cause.Error(),
		"original_error", rec.ErrorMessage,
		"error_type", rec.ErrorType,
		"stage", rec.ProcessingStage,
		"event_id", deref(rec.EventID),
	)
}

func (s *Sink) observe(rec *event.ErrorRecord, status string) {
	if s.metrics != nil {
		s.metrics.IncErrorRecords(rec.ErrorType, rec.ProcessingStage, status)
	}
}

// Trace renders the wrap chain of err, outermost first, one line per
// layer with its concrete type.
func Trace(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %v\n", e, e)
	}
	return b.String()
}

func message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
