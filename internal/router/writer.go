// Package router resolves the destination table of a record and appends
// the record to it.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/pkg/event"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// DefaultPrefix is prepended to the event type to form the table name.
const DefaultPrefix = "events_"

// MetricsCollector defines metrics operations for table writes.
type MetricsCollector interface {
	IncTableAppends(table, status string)
	ObserveAppendDuration(table string, seconds float64)
}

// Writer appends normalized records to their per-type tables.
type Writer struct {
	catalog table.Catalog
	sink    errorsink.Recorder
	prefix  string
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewWriter creates a Writer. An empty prefix selects DefaultPrefix.
func NewWriter(catalog table.Catalog, sink errorsink.Recorder, prefix string, logger *slog.Logger, metrics MetricsCollector) *Writer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Writer{
		catalog: catalog,
		sink:    sink,
		prefix:  prefix,
		logger:  logger,
		metrics: metrics,
	}
}

// TableName returns the table for an event type.
func (w *Writer) TableName(eventType string) string {
	return w.prefix + eventType
}

// Write appends rec to the table for its event type and returns that
// table's name. Load or append failures are recorded once as WriteError
// and returned.
func (w *Writer) Write(ctx context.Context, rec event.Record) (string, error) {
	name := w.TableName(rec.EventType())
	start := time.Now()

	err := w.append(ctx, name, rec)
	w.observe(name, start, err)
	if err != nil {
		pe := errors.New(errors.KindWrite, errors.StageWriteTable, err).WithEvent(rec.EventID(), rec.EventType())
		w.sink.Record(ctx, errorsink.FromError(pe, rec.Value()))
		w.logger.Error("failed to write record",
			"table", name,
			"event_id", pe.EventID,
			"error", err,
		)
		return "", pe
	}

	w.logger.Debug("record written", "table", name, "event_id", rec.EventID())
	return name, nil
}

func (w *Writer) append(ctx context.Context, name string, rec event.Record) error {
	tbl, err := w.catalog.LoadTable(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load table %s: %w", name, err)
	}
	if err := tbl.Append(ctx, table.NewBatch(rec)); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return nil
}

func (w *Writer) observe(name string, start time.Time, err error) {
	if w.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.IncTableAppends(name, status)
	w.metrics.ObserveAppendDuration(name, time.Since(start).Seconds())
}
