// Package encoder defines interfaces for encoding record batches to table
// data file formats.
package encoder

import (
	"context"
	"io"

	"github.com/jittakal/kafeventlake/pkg/table"
)

// FileFormat represents the table data file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// FileStats describes an encoded data file.
type FileStats struct {
	RecordCount int
	ColumnCount int
	SizeBytes   int64
}

// Encoder encodes record batches to a specific file format.
type Encoder interface {
	// Encode writes the batch to w as one complete file.
	Encode(ctx context.Context, w io.Writer, batch *table.Batch) (*FileStats, error)

	// Format returns the file format this encoder produces.
	Format() FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string

	// ContentType returns the MIME type of produced files.
	ContentType() string
}
