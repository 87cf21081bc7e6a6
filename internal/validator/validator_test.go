package validator

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/pkg/event"
)

type mockRecorder struct {
	failures []errorsink.Failure
}

func (m *mockRecorder) Record(_ context.Context, f errorsink.Failure) {
	m.failures = append(m.failures, f)
}

func mustDecode(t *testing.T, s string) event.Value {
	t.Helper()
	v, err := event.Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", s, err)
	}
	return v
}

func TestEventValidator_ValidateSuccess(t *testing.T) {
	rec := &mockRecorder{}
	validator := NewEventValidator(rec)

	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "all fields",
			input: `{"event_id":"e","event_type":"search","user_id":"u","timestamp":"2024-01-15T10:30:00.000000Z"}`,
		},
		{
			name:  "extra nested fields",
			input: `{"event_id":"e","event_type":"t","user_id":"u","timestamp":"x","_doc":{"a":{"b":1}}}`,
		},
		{
			name:  "null still counts as present",
			input: `{"event_id":"e","event_type":"t","user_id":null,"timestamp":"x"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := mustDecode(t, tt.input)
			got, err := validator.Validate(context.Background(), in)
			if err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
			if !got.Equal(in) {
				t.Error("Validate() should return the event unchanged")
			}
		})
	}
	if len(rec.failures) != 0 {
		t.Errorf("recorded %d failures, want 0", len(rec.failures))
	}
}

func TestEventValidator_FirstMissingField(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantField string
		wantID    string
	}{
		{"empty", `{}`, "event_id", ""},
		{"only id", `{"event_id":"e-1"}`, "event_type", "e-1"},
		{"missing user and timestamp", `{"event_id":"e-1","event_type":"t"}`, "user_id", "e-1"},
		{"missing timestamp", `{"event_id":"e-1","event_type":"t","user_id":"u"}`, "timestamp", "e-1"},
		{"order independent of input", `{"timestamp":"x","user_id":"u"}`, "event_id", ""},
		{"not a map", `[1,2]`, "event_id", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			validator := NewEventValidator(rec)
			in := mustDecode(t, tt.input)

			_, err := validator.Validate(context.Background(), in)

			var mf *apperrors.MissingFieldError
			if !errors.As(err, &mf) {
				t.Fatalf("Validate() error = %v, want MissingFieldError", err)
			}
			if mf.Field != tt.wantField {
				t.Errorf("missing field = %s, want %s", mf.Field, tt.wantField)
			}
			if apperrors.KindOf(err) != apperrors.KindValidation {
				t.Errorf("KindOf() = %q", apperrors.KindOf(err))
			}

			if len(rec.failures) != 1 {
				t.Fatalf("recorded %d failures, want 1", len(rec.failures))
			}
			f := rec.failures[0]
			if f.Stage != apperrors.StageValidate || f.EventID != tt.wantID {
				t.Errorf("recorded stage=%s id=%q", f.Stage, f.EventID)
			}
			if !f.Event.Equal(in) {
				t.Error("recorded failure should carry the raw event")
			}
		})
	}
}
