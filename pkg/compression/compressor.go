// Package compression provides streaming compression for delimited text
// inputs and outputs.
//
// # Overview
//
// The package wraps readers and writers with one of several algorithms:
//   - Gzip (klauspost/compress/gzip)
//   - Zstd (klauspost/compress/zstd)
//   - Snappy framed stream (klauspost/compress/snappy)
//   - S2 stream (klauspost/compress/s2)
//   - LZ4 frame (pierrec/lz4)
//
// The algorithm is chosen from the file extension (FromPath) or sniffed
// from the leading magic bytes (Detect).
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Better,
//	})
//	w, err := comp.NewWriter(file)
//	defer w.Close()
//
//	r, err := comp.NewReader(file)
//	defer r.Close()
//
// The colfile format itself is always written uncompressed.
package compression

import (
	"bufio"
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents the snappy framing format
	Snappy Algorithm = "snappy"
	// LZ4 represents the lz4 frame format
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents the s2 stream format
	S2 Algorithm = "s2"
)

// Level represents compression level
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Better improves compression at cost of speed
	Better Level = 7
	// Best maximizes compression ratio
	Best Level = 9
)

// Compressor wraps streams with one algorithm. Implementations are safe
// for concurrent use; the returned streams are not.
type Compressor interface {
	// NewReader returns a reader yielding the decompressed content of src.
	// Closing it does not close src.
	NewReader(src io.Reader) (io.ReadCloser, error)

	// NewWriter returns a writer compressing into dst. Close flushes the
	// final frame and does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// Algorithm returns the compression algorithm used
	Algorithm() Algorithm

	// Level returns the configured compression level
	Level() Level
}

// Config represents compressor configuration
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns gzip at the default level
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Gzip,
		Level:     Default,
	}
}

// ParseAlgorithm parses an algorithm name. The empty string is None.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return None, nil
	case None, Gzip, Snappy, LZ4, Zstd, S2:
		return a, nil
	case "gz":
		return Gzip, nil
	case "zst":
		return Zstd, nil
	default:
		return "", tabulaerrors.Newf(tabulaerrors.ErrorTypeConfig, "unsupported compression algorithm: %s", name)
	}
}

var extensions = map[string]Algorithm{
	".gz":     Gzip,
	".gzip":   Gzip,
	".zst":    Zstd,
	".zstd":   Zstd,
	".lz4":    LZ4,
	".sz":     Snappy,
	".snappy": Snappy,
	".s2":     S2,
}

// FromPath returns the algorithm implied by the file extension and the
// path with that extension removed. Unknown extensions yield None.
func FromPath(path string) (Algorithm, string) {
	ext := strings.ToLower(filepath.Ext(path))
	if alg, ok := extensions[ext]; ok {
		return alg, path[:len(path)-len(ext)]
	}
	return None, path
}

var magics = []struct {
	prefix []byte
	alg    Algorithm
}{
	{[]byte{0x1f, 0x8b}, Gzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, Zstd},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, LZ4},
	{[]byte("\xff\x06\x00\x00sNaPpY"), Snappy},
	{[]byte("\xff\x06\x00\x00S2sTwO"), S2},
}

// Detect sniffs the algorithm from the first bytes of a stream
func Detect(header []byte) Algorithm {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.prefix) {
			return m.alg
		}
	}
	return None
}

// DetectReader peeks at r and returns the detected algorithm together with
// a reader that still yields every byte of r
func DetectReader(r io.Reader) (Algorithm, io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(10)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return None, nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to read input header")
	}
	return Detect(header), br, nil
}

// NewCompressor creates a compressor. If config is nil, DefaultConfig is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	base := baseCompressor{algorithm: config.Algorithm, level: config.Level}

	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCompressor{base}, nil
	case Gzip:
		return &gzipCompressor{base}, nil
	case Snappy:
		return &snappyCompressor{base}, nil
	case LZ4:
		return &lz4Compressor{base}, nil
	case Zstd:
		return &zstdCompressor{base}, nil
	case S2:
		return &s2Compressor{base}, nil
	default:
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeConfig, "unsupported compression algorithm: %s", config.Algorithm)
	}
}

// NewReader is a shortcut for decompressing src with alg
func NewReader(src io.Reader, alg Algorithm) (io.ReadCloser, error) {
	comp, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
	if err != nil {
		return nil, err
	}
	return comp.NewReader(src)
}

// NewWriter is a shortcut for compressing into dst with alg at level
func NewWriter(dst io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	comp, err := NewCompressor(&Config{Algorithm: alg, Level: level})
	if err != nil {
		return nil, err
	}
	return comp.NewWriter(dst)
}

type baseCompressor struct {
	algorithm Algorithm
	level     Level
}

func (bc *baseCompressor) Algorithm() Algorithm { return bc.algorithm }
func (bc *baseCompressor) Level() Level         { return bc.level }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// None compressor
type noneCompressor struct{ baseCompressor }

func (nc *noneCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

func (nc *noneCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

// Gzip compressor
type gzipCompressor struct{ baseCompressor }

func (gc *gzipCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	r, err := gzip.NewReader(src)
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeInvalidFormat, "invalid gzip stream")
	}
	return r, nil
}

func (gc *gzipCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w, err := gzip.NewWriterLevel(dst, mapGzipLevel(gc.level))
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to create gzip writer")
	}
	return w, nil
}

// Snappy compressor
type snappyCompressor struct{ baseCompressor }

func (sc *snappyCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

func (sc *snappyCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

// LZ4 compressor
type lz4Compressor struct{ baseCompressor }

func (lc *lz4Compressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}

func (lc *lz4Compressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(lc.level))); err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to configure lz4 writer")
	}
	return w, nil
}

// Zstd compressor
type zstdCompressor struct{ baseCompressor }

func (zc *zstdCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeInvalidFormat, "invalid zstd stream")
	}
	return dec.IOReadCloser(), nil
}

func (zc *zstdCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(zc.level)))
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to create zstd writer")
	}
	return enc, nil
}

// S2 compressor
type s2Compressor struct{ baseCompressor }

func (sc *s2Compressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(src)), nil
}

func (sc *s2Compressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(dst), nil
}

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
