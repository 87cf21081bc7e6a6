// Package event defines the data model of the ingestion pipeline.
//
// # Raw events
//
// A raw event is a Value: a tagged union of null, string, integer, float,
// boolean, instant, list and map. Maps keep input key order. Decode builds a
// Value tree from JSON, keeping integers and floats apart:
//
//	v, err := event.Decode([]byte(`{"event_id":"e-1","_doc":{"a":{"b":1}}}`))
//	id, typ := event.Identity(v)
//
// Every event carries the mandatory fields listed in RequiredFields, and may
// carry nested metadata and _doc maps of any depth.
//
// # Records
//
// A Record is the flat row derived from one event: column name to scalar
// Value. Columns flattened from _doc have the leading underscore removed, so
// _doc_session_id is stored as doc_session_id.
//
// # Error records
//
// ErrorRecord is the row written to the error table for every captured
// failure. ToRecord turns it into a Record for appending.
package event
