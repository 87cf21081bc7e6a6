package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/internal/flatten"
	"github.com/jittakal/kafeventlake/pkg/event"
)

type mockRecorder struct {
	failures []errorsink.Failure
}

func (m *mockRecorder) Record(_ context.Context, f errorsink.Failure) {
	m.failures = append(m.failures, f)
}

func newBuilder() (*Builder, *mockRecorder) {
	rec := &mockRecorder{}
	return NewBuilder(flatten.New(rec), rec), rec
}

func decode(t *testing.T, s string) event.Value {
	t.Helper()
	v, err := event.Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return v
}

const sample = `{
	"event_id": "evt-1",
	"event_type": "page_view",
	"user_id": "user-9",
	"timestamp": "2024-01-15T10:30:00.123456Z",
	"metadata": {"source": "web", "version": "1.0"},
	"_doc": {
		"session_info": {"session_id": "s-1", "duration": 42},
		"engagement": {"scroll_depth": 0.75, "clicked": true}
	}
}`

func TestBuilder_Build(t *testing.T) {
	b, rec := newBuilder()

	got, err := b.Build(context.Background(), decode(t, sample))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := map[string]any{
		"event_id":                    "evt-1",
		"event_type":                  "page_view",
		"user_id":                     "user-9",
		"timestamp":                   time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC),
		"metadata_source":             "web",
		"metadata_version":            "1.0",
		"doc_session_info_session_id": "s-1",
		"doc_session_info_duration":   int64(42),
		"doc_engagement_scroll_depth": 0.75,
		"doc_engagement_clicked":      true,
	}
	plain := make(map[string]any, len(got))
	for k, v := range got {
		plain[k] = v.Interface()
	}
	if diff := cmp.Diff(want, plain); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}

	for _, col := range got.Columns() {
		if len(col) >= len(event.DocPrefix) && col[:len(event.DocPrefix)] == event.DocPrefix {
			t.Errorf("column %q kept the private marker", col)
		}
	}
	if len(rec.failures) != 0 {
		t.Errorf("recorded %d failures, want 0", len(rec.failures))
	}
}

func TestBuilder_TimestampWithoutFraction(t *testing.T) {
	b, _ := newBuilder()
	got, err := b.Build(context.Background(), decode(t,
		`{"event_id":"e","event_type":"t","user_id":"u","timestamp":"2024-01-15T10:30:00Z"}`))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ts, _ := got.Time("timestamp")
	if !ts.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", ts)
	}
}

func TestBuilder_ProcessingErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad timestamp", `{"event_id":"e","event_type":"t","user_id":"u","timestamp":"yesterday"}`},
		{"timestamp with offset", `{"event_id":"e","event_type":"t","user_id":"u","timestamp":"2024-01-15T10:30:00+02:00"}`},
		{"numeric timestamp", `{"event_id":"e","event_type":"t","user_id":"u","timestamp":1705314600}`},
		{"doc rename collision", `{"event_id":"e","event_type":"t","user_id":"u","timestamp":"2024-01-15T10:30:00Z","doc_a":1,"_doc":{"a":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec := newBuilder()
			_, err := b.Build(context.Background(), decode(t, tt.input))
			if apperrors.KindOf(err) != apperrors.KindProcessing {
				t.Fatalf("Build() error = %v, want ProcessingError", err)
			}
			if len(rec.failures) != 1 {
				t.Fatalf("recorded %d failures, want 1", len(rec.failures))
			}
			f := rec.failures[0]
			if f.Stage != apperrors.StageBuildRecord || f.EventID != "e" || f.EventType != "t" {
				t.Errorf("recorded %+v", f)
			}
			if f.Event.IsNull() {
				t.Error("recorded failure should carry the raw event")
			}
		})
	}
}

func TestBuilder_FlattenErrorRecordedOnce(t *testing.T) {
	b, rec := newBuilder()

	_, err := b.Build(context.Background(), event.StringValue("nope"))
	if apperrors.KindOf(err) != apperrors.KindFlatten {
		t.Fatalf("Build() error = %v, want FlattenError", err)
	}
	if len(rec.failures) != 1 {
		t.Errorf("recorded %d failures, want exactly 1", len(rec.failures))
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-02-29T23:59:59.999999Z")
	if err != nil {
		t.Fatalf("ParseTimestamp() error = %v", err)
	}
	if ts.Location() != time.UTC || ts.Nanosecond() != 999999000 {
		t.Errorf("ParseTimestamp() = %v", ts)
	}
	if _, err := ParseTimestamp("2024-13-01T00:00:00Z"); err == nil {
		t.Error("month 13 should not parse")
	}
}
