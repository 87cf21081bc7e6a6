// Package compress provides the gzip and zstd codecs used for table files
// and manifests.
package compress

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// Codec names a compression format.
type Codec string

const (
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compressor compresses payloads and records codec failures.
type Compressor struct {
	codec Codec
	level int
	sink  errorsink.Recorder
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithCodec selects the codec. The default is gzip.
func WithCodec(codec Codec) Option {
	return func(c *Compressor) { c.codec = codec }
}

// WithLevel sets the gzip compression level.
func WithLevel(level int) Option {
	return func(c *Compressor) { c.level = level }
}

// New creates a Compressor. sink may be nil, in which case failures are
// only returned.
func New(sink errorsink.Recorder, opts ...Option) *Compressor {
	c := &Compressor{codec: CodecGzip, level: gzip.DefaultCompression, sink: sink}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Codec returns the configured codec.
func (c *Compressor) Codec() Codec { return c.codec }

// Compress encodes data with the configured codec. A codec failure is
// recorded as a CompressionError and returned.
func (c *Compressor) Compress(ctx context.Context, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch c.codec {
	case CodecGzip, "":
		out, err = Gzip(data, c.level)
	case CodecZstd:
		out, err = Zstd(data)
	default:
		err = fmt.Errorf("unsupported codec %q", c.codec)
	}
	if err != nil {
		pe := errors.New(errors.KindCompression, errors.StageCompress, err)
		if c.sink != nil {
			c.sink.Record(ctx, errorsink.FromError(pe, event.NullValue()))
		}
		return nil, pe
	}
	return out, nil
}

// CompressAny compresses []byte input and returns any other input
// unchanged.
func (c *Compressor) CompressAny(ctx context.Context, data any) (any, error) {
	b, ok := data.([]byte)
	if !ok {
		return data, nil
	}
	return c.Compress(ctx, b)
}

// Gzip compresses data at the given level.
func Gzip(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write gzip stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Zstd compresses data with the default zstd encoder. Empty input still
// yields a complete frame.
func Zstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decompress decodes a gzip or zstd payload, detected by its magic bytes.
func Decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unrecognized compression format")
	}
}
