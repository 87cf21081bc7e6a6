// Package storage defines interfaces for warehouse object storage.
//
// This package provides abstractions for writing table data and metadata
// files to various storage backends (S3, GCS, Azure Blob, local
// filesystem).
package storage

import (
	"context"
	"io"

	"github.com/jittakal/kafeventlake/pkg/event"
)

// ObjectStore stores warehouse objects by key.
type ObjectStore interface {
	// Put uploads body under key and returns the object's location URI.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)

	// Backend returns the backend name (file, s3, gcs, azure).
	Backend() string

	// Close closes the store and releases resources.
	Close() error
}

// Router determines the partition directory of a record within a table.
type Router interface {
	// Route returns the data directory for rec in table, ending in "/".
	Route(table string, rec event.Record) string

	// MetadataPath returns the metadata directory of table, ending in "/".
	MetadataPath(table string) string
}
