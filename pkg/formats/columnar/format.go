// Package columnar converts tabula tables to and from the common columnar
// interchange formats: Arrow IPC files, Parquet and Avro object container
// files.
//
// Each format offers a Write function that encodes a whole table and a Read
// function that decodes a whole file:
//
//	err := columnar.Write(ctx, w, table, columnar.Parquet, columnar.WriterOptions{})
//	t, err := columnar.Read(ctx, src, size, columnar.Parquet, columnar.ReaderOptions{})
//
// Integer columns are stored as 64-bit integers, floats as doubles, then
// booleans and UTF-8 strings. Readers accept the narrower integer and float
// types of each format and widen them.
package columnar

import (
	"bytes"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Format names an interchange format
type Format string

const (
	// Arrow is the Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Parquet is Apache Parquet
	Parquet Format = "parquet"
	// Avro is the Apache Avro object container file format
	Avro Format = "avro"
)

// Formats lists the supported formats
var Formats = []Format{Arrow, Parquet, Avro}

var (
	arrowMagic   = []byte("ARROW1")
	parquetMagic = []byte("PAR1")
	avroMagic    = []byte("Obj\x01")
)

// ParseFormat resolves a format name or file extension
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "arrow", "ipc", "feather":
		return Arrow, nil
	case "parquet", "pq":
		return Parquet, nil
	case "avro":
		return Avro, nil
	}
	return "", tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "unknown format %q", name).
		WithDetail("format", name)
}

// Detect identifies the format from the first bytes of a file
func Detect(header []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(header, arrowMagic):
		return Arrow, true
	case bytes.HasPrefix(header, parquetMagic):
		return Parquet, true
	case bytes.HasPrefix(header, avroMagic):
		return Avro, true
	}
	return "", false
}

// FormatInfo describes a format
type FormatInfo struct {
	Name          string
	Description   string
	FileExtension string
	MIMEType      string
	Compressions  []string
}

// GetFormatInfo returns information about the format, or nil if unknown
func GetFormatInfo(format Format) *FormatInfo {
	switch format {
	case Arrow:
		return &FormatInfo{
			Name:          "Apache Arrow",
			Description:   "In-memory columnar format, IPC file layout",
			FileExtension: ".arrow",
			MIMEType:      "application/vnd.apache.arrow.file",
			Compressions:  []string{"none", "lz4", "zstd"},
		}
	case Parquet:
		return &FormatInfo{
			Name:          "Apache Parquet",
			Description:   "Columnar storage format optimized for analytics",
			FileExtension: ".parquet",
			MIMEType:      "application/vnd.apache.parquet",
			Compressions:  []string{"none", "snappy", "gzip", "zstd", "brotli", "lz4"},
		}
	case Avro:
		return &FormatInfo{
			Name:          "Apache Avro",
			Description:   "Row-oriented data serialization format",
			FileExtension: ".avro",
			MIMEType:      "application/avro",
			Compressions:  []string{"none", "deflate", "snappy"},
		}
	default:
		return nil
	}
}

// DefaultBatchSize is the number of rows per record batch, row group or
// Avro block when none is configured
const DefaultBatchSize = 65536

// WriterOptions configures Write
type WriterOptions struct {
	// BatchSize is the number of rows per record batch or row group
	BatchSize int
	// Compression names a codec from FormatInfo.Compressions; empty picks
	// the format's default
	Compression string
	Logger      *zap.Logger
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ReaderOptions configures Read
type ReaderOptions struct {
	// BatchSize is the number of rows decoded per step
	BatchSize int
	Logger    *zap.Logger
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Write encodes t to w in the given format
func Write(ctx context.Context, w io.Writer, t *columnar.Table, format Format, opts WriterOptions) error {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return tabulaerrors.FromContext(err, "export canceled")
	}
	cw := &countingWriter{w: w}
	var err error
	switch format {
	case Arrow:
		err = writeArrow(ctx, cw, t, opts)
	case Parquet:
		err = writeParquet(ctx, cw, t, opts)
	case Avro:
		err = writeAvro(ctx, cw, t, opts)
	default:
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "unsupported format: %s", format)
	}
	if err != nil {
		return err
	}
	opts.Logger.Debug("table exported",
		zap.String("component", "columnar_writer"),
		zap.String("format", string(format)),
		zap.Int("rows", t.NumRows()),
		zap.Int64("bytes", cw.n))
	return nil
}

// Read decodes the size-byte file behind r
func Read(ctx context.Context, r io.ReaderAt, size int64, format Format, opts ReaderOptions) (*columnar.Table, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "import canceled")
	}
	sr := io.NewSectionReader(r, 0, size)
	var (
		t   *columnar.Table
		err error
	)
	switch format {
	case Arrow:
		t, err = readArrow(ctx, sr, opts)
	case Parquet:
		t, err = readParquet(ctx, sr, opts)
	case Avro:
		t, err = readAvro(ctx, sr, opts)
	default:
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("table imported",
		zap.String("component", "columnar_reader"),
		zap.String("format", string(format)),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumColumns()))
	return t, nil
}

// countingWriter counts bytes and hides any Close method of the wrapped
// writer, so that format writers closing their sink leave it open
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// each calls fn for consecutive row ranges of at most n rows, checking ctx
// before every range
func each(ctx context.Context, t *columnar.Table, n int, fn func(ch columnar.Chunk) error) error {
	chunks, err := t.Chunks(n)
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return tabulaerrors.FromContext(err, "export canceled")
		}
		if err := fn(ch); err != nil {
			return err
		}
	}
	return nil
}

func invalid(err error, format Format, msg string) error {
	return tabulaerrors.Wrapf(err, tabulaerrors.ErrorTypeInvalidFormat, "%s: %s", format, msg).
		WithDetail("format", string(format))
}
