package encoder

import (
	"fmt"

	"github.com/jittakal/kafeventlake/pkg/encoder"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      encoder.FileFormat
	compression string
	compressor  Compressor
}

// NewFactory creates a new encoder factory. An empty compression selects
// DefaultCompression for the format. The compressor is only used by
// formats that compress whole files.
func NewFactory(format encoder.FileFormat, compression string, compressor Compressor) *Factory {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	return &Factory{
		format:      format,
		compression: compression,
		compressor:  compressor,
	}
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case encoder.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case encoder.FormatAvro:
		return NewAvroEncoder(f.compression, f.compressor)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []encoder.FileFormat {
	return []encoder.FileFormat{
		encoder.FormatParquet,
		encoder.FormatAvro,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format encoder.FileFormat) []string {
	switch format {
	case encoder.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case encoder.FormatAvro:
		return []string{"uncompressed", "deflate", "snappy", "gzip"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format encoder.FileFormat) string {
	switch format {
	case encoder.FormatParquet:
		return "zstd"
	case encoder.FormatAvro:
		return "deflate"
	default:
		return "uncompressed"
	}
}
