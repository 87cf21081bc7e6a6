// Package validator checks raw events for their mandatory fields.
package validator

import (
	"context"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// EventValidator verifies that the mandatory top-level fields are present.
type EventValidator struct {
	sink   errorsink.Recorder
	fields []string
}

// NewEventValidator creates a validator checking event.RequiredFields.
func NewEventValidator(sink errorsink.Recorder) *EventValidator {
	return &EventValidator{sink: sink, fields: event.RequiredFields}
}

// Validate returns e unchanged when every mandatory field is present.
// Presence is what counts: a field holding null is present. Fields are
// checked in order and the first missing one is reported as a
// ValidationError, after it has been recorded with the raw event.
func (v *EventValidator) Validate(ctx context.Context, e event.Value) (event.Value, error) {
	for _, field := range v.fields {
		if e.Has(field) {
			continue
		}

		id, typ := event.Identity(e)
		pe := errors.New(errors.KindValidation, errors.StageValidate,
			&errors.MissingFieldError{Field: field}).WithEvent(id, typ)
		v.sink.Record(ctx, errorsink.FromError(pe, e))
		return event.Value{}, pe
	}
	return e, nil
}
