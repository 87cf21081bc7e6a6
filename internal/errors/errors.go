// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrMissingField   = errors.New("missing required field")
	ErrNotAMap        = errors.New("value is not a map")
	ErrKeyCollision   = errors.New("flattened key collision")
	ErrTableNotFound  = errors.New("table not found")
	ErrCatalogClosed  = errors.New("catalog is closed")
	ErrConsumerClosed = errors.New("consumer is closed")
	ErrWriterClosed   = errors.New("storage writer is closed")
	ErrConnectionLost = errors.New("connection lost")
)

// Kind classifies a pipeline failure. Its string form is stored verbatim in
// the error_type column.
type Kind string

const (
	KindValidation  Kind = "ValidationError"
	KindFlatten     Kind = "FlattenError"
	KindProcessing  Kind = "ProcessingError"
	KindWrite       Kind = "WriteError"
	KindCompression Kind = "CompressionError"
	KindHandler     Kind = "HandlerError"
)

// Processing stages, stored in the processing_stage column.
const (
	StageDecode      = "decode"
	StageValidate    = "validate"
	StageFlatten     = "flatten"
	StageBuildRecord = "build_record"
	StageWriteTable  = "write_table"
	StageCompress    = "compress"
	StageHandle      = "handle"
)

// PipelineError is the tagged failure returned by every pipeline stage.
// By the time a caller sees one, it has already been handed to the error sink.
type PipelineError struct {
	Kind      Kind
	Stage     string
	EventID   string
	EventType string
	Err       error
}

func (e *PipelineError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("%s: stage=%s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: stage=%s event_id=%s: %v", e.Kind, e.Stage, e.EventID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the underlying cause is retryable.
func (e *PipelineError) IsRetryable() bool {
	return e.Kind == KindWrite && IsRetryable(e.Err)
}

// New builds a PipelineError.
func New(kind Kind, stage string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}

// WithEvent sets the event identity of e and returns it.
func (e *PipelineError) WithEvent(id, typ string) *PipelineError {
	e.EventID = id
	e.EventType = typ
	return e
}

// AsPipeline extracts a PipelineError from err's chain.
func AsPipeline(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or an empty Kind when err is not a
// PipelineError.
func KindOf(err error) Kind {
	if pe, ok := AsPipeline(err); ok {
		return pe.Kind
	}
	return ""
}

// MissingFieldError names the first absent mandatory field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrConnectionLost)
}

// Is is errors.Is, re-exported so callers need only one errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As, re-exported so callers need only one errors import.
func As(err error, target any) bool { return errors.As(err, target) }
