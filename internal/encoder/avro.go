package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafeventlake/pkg/encoder"
	"github.com/jittakal/kafeventlake/pkg/event"
	"github.com/jittakal/kafeventlake/pkg/table"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// Compressor compresses whole encoded files.
type Compressor interface {
	Compress(ctx context.Context, data []byte) ([]byte, error)
}

// AvroEncoder implements encoder.Encoder for Avro object container files.
//
// Block compression (deflate, snappy) is handled by the container itself.
// With gzip the finished container is compressed as a whole by the
// configured Compressor and the file extension becomes .avro.gz.
type AvroEncoder struct {
	compression string
	compressor  Compressor
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string, compressor Compressor) (*AvroEncoder, error) {
	compression = strings.ToLower(compression)
	switch compression {
	case "", "uncompressed", "none", "null", "deflate", "snappy":
	case "gzip":
		if compressor == nil {
			return nil, fmt.Errorf("gzip avro compression requires a compressor")
		}
	default:
		return nil, fmt.Errorf("unsupported avro compression: %s", compression)
	}
	return &AvroEncoder{compression: compression, compressor: compressor}, nil
}

func (e *AvroEncoder) blockCodec() string {
	switch e.compression {
	case "deflate":
		return goavro.CompressionDeflateLabel
	case "snappy":
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionNullLabel
	}
}

// avroField describes one schema field and how to convert its values.
type avroField struct {
	column string
	name   string
	kind   event.Kind
	branch string
}

// avroType returns the non-null union branch type and its union name.
func avroType(kind event.Kind) (any, string) {
	switch kind {
	case event.KindInt:
		return "long", "long"
	case event.KindFloat:
		return "double", "double"
	case event.KindBool:
		return "boolean", "boolean"
	case event.KindTime:
		return map[string]string{"type": "long", "logicalType": "timestamp-micros"}, "long.timestamp-micros"
	default:
		return "string", "string"
	}
}

// schema derives the Avro record schema of a batch. Column names are
// sanitized to Avro identifiers; every field is a nullable union.
func (e *AvroEncoder) schema(batch *table.Batch) (string, []avroField, error) {
	fields := make([]avroField, 0, batch.NumColumns())
	schemaFields := make([]map[string]any, 0, batch.NumColumns())
	used := make(map[string]bool, batch.NumColumns())

	for _, col := range batch.Columns {
		name := avroName(col.Name)
		for i := 2; used[name]; i++ {
			name = avroName(col.Name) + "_" + strconv.Itoa(i)
		}
		used[name] = true

		typ, branch := avroType(col.Kind)
		fields = append(fields, avroField{column: col.Name, name: name, kind: col.Kind, branch: branch})
		schemaFields = append(schemaFields, map[string]any{
			"name":    name,
			"type":    []any{"null", typ},
			"default": nil,
		})
	}

	schema, err := json.Marshal(map[string]any{
		"type":      "record",
		"name":      "Record",
		"namespace": "io.kafeventlake",
		"fields":    schemaFields,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal avro schema: %w", err)
	}
	return string(schema), fields, nil
}

// avroName maps a column name onto [A-Za-z_][A-Za-z0-9_]*.
func avroName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// Encode writes the batch as one Avro container file.
func (e *AvroEncoder) Encode(ctx context.Context, w io.Writer, batch *table.Batch) (*encoder.FileStats, error) {
	if batch.NumRows() == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	schema, fields, err := e.schema(batch)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	var buf bytes.Buffer
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &buf,
		Codec:           codec,
		CompressionName: e.blockCodec(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	datums := make([]any, batch.NumRows())
	for r := range datums {
		datum, err := e.datum(batch, fields, r)
		if err != nil {
			return nil, fmt.Errorf("failed to convert row %d: %w", r, err)
		}
		datums[r] = datum
	}
	if err := ocfWriter.Append(datums); err != nil {
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	data := buf.Bytes()
	if e.compression == "gzip" {
		if data, err = e.compressor.Compress(ctx, data); err != nil {
			return nil, err
		}
	}

	n, err := w.Write(data)
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &encoder.FileStats{
		RecordCount: batch.NumRows(),
		ColumnCount: batch.NumColumns(),
		SizeBytes:   int64(n),
	}, nil
}

func (e *AvroEncoder) datum(batch *table.Batch, fields []avroField, row int) (map[string]any, error) {
	datum := make(map[string]any, len(fields))
	for i, f := range fields {
		v := batch.Columns[i].Values[row]
		if v.IsNull() {
			datum[f.name] = nil
			continue
		}
		native, err := avroNative(f.kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.column, err)
		}
		datum[f.name] = goavro.Union(f.branch, native)
	}
	return datum, nil
}

func avroNative(kind event.Kind, v event.Value) (any, error) {
	switch kind {
	case event.KindInt:
		i, _ := v.AsInt64()
		return i, nil
	case event.KindFloat:
		if f, ok := v.AsFloat64(); ok {
			return f, nil
		}
		i, _ := v.AsInt64()
		return float64(i), nil
	case event.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case event.KindTime:
		t, _ := v.AsTime()
		return t, nil
	default:
		return stringCell(v)
	}
}

// Format returns the file format.
func (e *AvroEncoder) Format() encoder.FileFormat {
	return encoder.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.compression == "gzip" {
		return ".avro.gz"
	}
	return ".avro"
}

// ContentType returns the MIME type of produced files.
func (e *AvroEncoder) ContentType() string {
	if e.compression == "gzip" {
		return "application/gzip"
	}
	return "application/avro"
}
