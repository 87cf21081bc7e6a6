package encoder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/kafeventlake/pkg/encoder"
	"github.com/jittakal/kafeventlake/pkg/event"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// ParquetEncoder implements encoder.Encoder for Apache Parquet.
//
// The schema is derived from each batch: every column is an optional leaf
// whose physical type follows the column kind, with instants stored as
// TIMESTAMP_MICROS and lists or maps stored as JSON strings.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch strings.ToLower(compression) {
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "uncompressed", "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Zstd)
	}
}

// leafNode returns the parquet leaf for a column kind.
func leafNode(kind event.Kind) parquet.Node {
	switch kind {
	case event.KindInt:
		return parquet.Int(64)
	case event.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case event.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case event.KindTime:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

// Schema builds the parquet schema of a batch.
func (e *ParquetEncoder) Schema(batch *table.Batch) *parquet.Schema {
	group := make(parquet.Group, batch.NumColumns())
	for _, col := range batch.Columns {
		group[col.Name] = parquet.Optional(leafNode(col.Kind))
	}
	return parquet.NewSchema("record", group)
}

// Encode writes the batch as a single Parquet file.
func (e *ParquetEncoder) Encode(ctx context.Context, w io.Writer, batch *table.Batch) (*encoder.FileStats, error) {
	if batch.NumRows() == 0 {
		return nil, fmt.Errorf("no records to encode")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := e.rows(batch)
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: w}
	writer := parquet.NewWriter(cw,
		e.Schema(batch),
		compressionCodec(e.compressionName),
		parquet.CreatedBy("kafeventlake", "1.0", "0"),
	)

	if _, err := writer.WriteRows(rows); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return &encoder.FileStats{
		RecordCount: batch.NumRows(),
		ColumnCount: batch.NumColumns(),
		SizeBytes:   cw.n,
	}, nil
}

// rows builds parquet rows. Group fields are ordered by name, matching the
// sorted batch columns, so column i of the batch is leaf i of the schema.
func (e *ParquetEncoder) rows(batch *table.Batch) ([]parquet.Row, error) {
	rows := make([]parquet.Row, batch.NumRows())
	for r := range rows {
		row := make(parquet.Row, batch.NumColumns())
		for c, col := range batch.Columns {
			v, err := parquetValue(col.Kind, col.Values[r])
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", col.Name, r, err)
			}
			if v.IsNull() {
				row[c] = v.Level(0, 0, c)
			} else {
				row[c] = v.Level(0, 1, c)
			}
		}
		rows[r] = row
	}
	return rows, nil
}

func parquetValue(kind event.Kind, v event.Value) (parquet.Value, error) {
	if v.IsNull() {
		return parquet.NullValue(), nil
	}
	switch kind {
	case event.KindInt:
		i, _ := v.AsInt64()
		return parquet.Int64Value(i), nil
	case event.KindFloat:
		if f, ok := v.AsFloat64(); ok {
			return parquet.DoubleValue(f), nil
		}
		i, _ := v.AsInt64()
		return parquet.DoubleValue(float64(i)), nil
	case event.KindBool:
		b, _ := v.AsBool()
		return parquet.BooleanValue(b), nil
	case event.KindTime:
		t, _ := v.AsTime()
		return parquet.Int64Value(t.UnixMicro()), nil
	default:
		s, err := stringCell(v)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.ByteArrayValue([]byte(s)), nil
	}
}

// stringCell renders a value stored in a string column. Containers become
// JSON; scalars use their text form.
func stringCell(v event.Value) (string, error) {
	if v.Kind().Scalar() {
		return v.String(), nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() encoder.FileFormat {
	return encoder.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}

// ContentType returns the MIME type of Parquet files.
func (e *ParquetEncoder) ContentType() string {
	return "application/vnd.apache.parquet"
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
