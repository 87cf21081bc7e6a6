// Package catalog resolves table names to appendable table handles.
//
// A Warehouse keeps table registrations and the data file log in a
// metadata Store (SQLite or PostgreSQL) and writes data files to an
// object store. Cache wraps any catalog with lazy one-time
// initialization and a table handle cache shared by all callers.
package catalog

import (
	"context"
	"time"
)

// DataFile describes one appended data file.
type DataFile struct {
	Table        string
	Path         string
	Format       string
	Partition    string
	RecordCount  int
	SizeBytes    int64
	ManifestPath string
	CreatedAt    time.Time
}

// Store persists table registrations and the data file log.
type Store interface {
	// RegisterTables registers table names. Already registered names are
	// left untouched.
	RegisterTables(ctx context.Context, names []string) error

	// TableExists reports whether a table is registered.
	TableExists(ctx context.Context, name string) (bool, error)

	// RecordDataFile appends a data file entry to the table's log.
	RecordDataFile(ctx context.Context, f DataFile) error

	// Close releases the store's connections.
	Close() error
}

// KnownTables lists the tables registered by default: the error table and
// one events table per known event type.
func KnownTables(prefix, errorTable string, eventTypes []string) []string {
	names := make([]string, 0, len(eventTypes)+1)
	names = append(names, errorTable)
	for _, t := range eventTypes {
		names = append(names, prefix+t)
	}
	return names
}

// DefaultEventTypes are the event types produced by the tracking clients.
var DefaultEventTypes = []string{
	"user_login",
	"product_view",
	"cart_update",
	"purchase",
	"page_view",
	"search",
	"click",
	"form_submission",
}
