package event

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Mandatory top-level event fields.
const (
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldUserID    = "user_id"
	FieldTimestamp = "timestamp"
)

// RequiredFields lists the mandatory fields in the order they are checked.
var RequiredFields = []string{FieldEventID, FieldEventType, FieldUserID, FieldTimestamp}

// DocPrefix marks columns flattened out of the private _doc payload.
const DocPrefix = "_doc_"

// TimestampLayout is the wire format of the event timestamp field.
// The fractional part is optional on input.
const TimestampLayout = "2006-01-02T15:04:05.999999999Z"

// Identity returns the event_id and event_type of a raw event when they are
// present as strings.
func Identity(v Value) (id, typ string) {
	id, _ = v.GetString(FieldEventID)
	typ, _ = v.GetString(FieldEventType)
	return id, typ
}

// Record is a normalized, flat event row keyed by column name. Every value
// is a scalar.
type Record map[string]Value

// Columns returns the column names in sorted order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// String returns the value of a string column.
func (r Record) String(col string) (string, bool) {
	v, ok := r[col]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Time returns the value of an instant column.
func (r Record) Time(col string) (time.Time, bool) {
	v, ok := r[col]
	if !ok {
		return time.Time{}, false
	}
	return v.AsTime()
}

// Value returns the record as a map Value with sorted columns.
func (r Record) Value() Value {
	fields := make([]Field, 0, len(r))
	for _, c := range r.Columns() {
		fields = append(fields, F(c, r[c]))
	}
	return MapValue(fields...)
}

// EventID returns the event_id column or an empty string.
func (r Record) EventID() string {
	s, _ := r.String(FieldEventID)
	return s
}

// EventType returns the event_type column or an empty string.
func (r Record) EventType() string {
	s, _ := r.String(FieldEventType)
	return s
}

// DocColumns returns the columns that came from the _doc payload, after
// the private marker was stripped.
func (r Record) DocColumns() []string {
	var cols []string
	for _, c := range r.Columns() {
		if strings.HasPrefix(c, DocPrefix[1:]) {
			cols = append(cols, c)
		}
	}
	return cols
}

// ErrorRecord describes one pipeline failure as stored in the error table.
// Nullable columns are pointers.
type ErrorRecord struct {
	ErrorID         string
	Timestamp       time.Time
	EventID         *string
	EventType       *string
	ErrorType       string
	ErrorMessage    string
	StackTrace      string
	ProcessingStage string
	EventData       *string
}

// ErrorRecord column names.
const (
	ColErrorID         = "error_id"
	ColTimestamp       = "timestamp"
	ColEventID         = "event_id"
	ColEventType       = "event_type"
	ColErrorType       = "error_type"
	ColErrorMessage    = "error_message"
	ColStackTrace      = "stack_trace"
	ColProcessingStage = "processing_stage"
	ColEventData       = "event_data"
)

// ToRecord converts the error record into a table row.
func (e *ErrorRecord) ToRecord() Record {
	return Record{
		ColErrorID:         StringValue(e.ErrorID),
		ColTimestamp:       TimeValue(e.Timestamp),
		ColEventID:         nullableString(e.EventID),
		ColEventType:       nullableString(e.EventType),
		ColErrorType:       StringValue(e.ErrorType),
		ColErrorMessage:    StringValue(e.ErrorMessage),
		ColStackTrace:      StringValue(e.StackTrace),
		ColProcessingStage: StringValue(e.ProcessingStage),
		ColEventData:       nullableString(e.EventData),
	}
}

func nullableString(s *string) Value {
	if s == nil {
		return NullValue()
	}
	return StringValue(*s)
}

// KafkaMetadata contains Kafka-specific metadata for a consumed message.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// ConsumedMessage is one message read from Kafka. Payload is the event
// document, already unwrapped from a CloudEvents envelope when the
// message carried one; Raw is the message value as received.
type ConsumedMessage struct {
	Payload    []byte
	Raw        []byte
	Metadata   KafkaMetadata
	CommitFunc func() error
}

// PartitionID returns the partition the message was read from.
func (m *ConsumedMessage) PartitionID() PartitionID {
	return PartitionID{Topic: m.Metadata.Topic, Partition: m.Metadata.Partition}
}
