// Package encoder writes record batches as table data files.
//
// Schemas are derived per batch from the column kinds of a table.Batch, so
// any flattened event shape can be written without a registered schema.
// Every column is nullable; a column missing from a record is written as
// null.
//
// # Formats
//
//   - Parquet: columnar, one optional leaf per column, instants stored as
//     TIMESTAMP(MICROS). Default compression zstd.
//   - Avro: object container file, one nullable union per column. Column
//     names are rewritten to valid Avro identifiers. Block compression is
//     deflate or snappy; gzip compresses the whole container.
//
// Lists and maps that reach an encoder are stored as JSON strings.
//
// # Usage
//
//	factory := encoder.NewFactory(pkgencoder.FormatParquet, "", nil)
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(ctx, w, table.NewBatch(records...))
//
// Encoders hold no per-call state and are safe for concurrent use.
package encoder
