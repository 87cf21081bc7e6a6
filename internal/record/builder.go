// Package record turns validated events into normalized table rows.
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/internal/flatten"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// Builder builds normalized records from raw events.
type Builder struct {
	flattener *flatten.Flattener
	sink      errorsink.Recorder
}

// NewBuilder creates a Builder. Flatten failures are recorded by the
// flattener itself; the builder records its own.
func NewBuilder(flattener *flatten.Flattener, sink errorsink.Recorder) *Builder {
	return &Builder{flattener: flattener, sink: sink}
}

// Build flattens e, parses its timestamp into an instant and strips the
// private marker from _doc_ columns.
func (b *Builder) Build(ctx context.Context, e event.Value) (event.Record, error) {
	rec, err := b.flattener.Flatten(ctx, e, "")
	if err != nil {
		// already recorded
		return nil, err
	}

	if err := normalize(rec); err != nil {
		id, typ := event.Identity(e)
		pe := errors.New(errors.KindProcessing, errors.StageBuildRecord, err).WithEvent(id, typ)
		b.sink.Record(ctx, errorsink.FromError(pe, e))
		return nil, pe
	}
	return rec, nil
}

func normalize(rec event.Record) error {
	raw, ok := rec[event.FieldTimestamp]
	if !ok {
		return fmt.Errorf("missing %s", event.FieldTimestamp)
	}
	s, ok := raw.AsString()
	if !ok {
		return fmt.Errorf("%s must be a string, got %s", event.FieldTimestamp, raw.Kind())
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	rec[event.FieldTimestamp] = event.TimeValue(ts)

	var doc []string
	for col := range rec {
		if strings.HasPrefix(col, event.DocPrefix) {
			doc = append(doc, col)
		}
	}
	for _, col := range doc {
		renamed := col[1:]
		if _, exists := rec[renamed]; exists {
			return fmt.Errorf("column %q collides with existing column %q", col, renamed)
		}
		rec[renamed] = rec[col]
		delete(rec, col)
	}
	return nil
}

// ParseTimestamp parses an event timestamp (YYYY-MM-DDTHH:MM:SS[.ffffff]Z)
// as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(event.TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", event.FieldTimestamp, s, err)
	}
	return ts.UTC(), nil
}
