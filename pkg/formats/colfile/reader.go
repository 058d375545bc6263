package colfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// ReaderOptions configures a Reader
type ReaderOptions struct {
	// ExpectedSchema, when set, must be compatible with the stored schema
	ExpectedSchema *schema.Schema
	// Workers bounds the number of chunks ReadTable decodes concurrently
	Workers int
	Logger  *zap.Logger
}

// Reader decodes a colfile. Construction validates the header, footer and
// schema; chunks are decoded on demand.
type Reader struct {
	r       io.ReaderAt
	size    int64
	version uint16
	opts    ReaderOptions
	logger  *zap.Logger

	layout    []columnLayout
	schema    schema.Schema
	footer    Footer
	dataStart int64
	dataEnd   int64
}

// NewReader validates the file of size bytes behind r
func NewReader(r io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	rd := &Reader{
		r:      r,
		size:   size,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "colfile_reader")),
	}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	footer, err := rd.readFooter()
	if err != nil {
		return nil, err
	}
	if err := rd.readSchema(); err != nil {
		return nil, err
	}
	if err := rd.footer.parse(footer, len(rd.layout)); err != nil {
		return nil, err
	}
	if err := rd.checkChunks(); err != nil {
		return nil, err
	}
	if opts.ExpectedSchema != nil {
		if err := rd.schema.Compatible(*opts.ExpectedSchema); err != nil {
			return nil, err
		}
	}
	rd.logger.Debug("colfile opened",
		zap.Int64("size", size),
		zap.Int("columns", len(rd.layout)),
		zap.Int("chunks", rd.footer.NumChunks()),
		zap.Uint64("rows", rd.footer.TotalRows))
	return rd, nil
}

func (rd *Reader) readHeader() error {
	n := int64(headerSize)
	if rd.size < n {
		n = rd.size
	}
	head, err := rd.readAt(0, int(n), tabulaerrors.ErrorTypeInvalidFormat)
	if err != nil {
		return err
	}
	if !IsColfile(head) {
		return tabulaerrors.New(tabulaerrors.ErrorTypeInvalidFormat, "not a colfile: bad magic")
	}
	if len(head) < headerSize {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter, "file of %d bytes is truncated", rd.size)
	}
	rd.version = binary.LittleEndian.Uint16(head[4:])
	if rd.version != Version {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeUnsupportedVersion,
			"colfile version %d is not supported, want %d", rd.version, Version).
			WithDetail("version", rd.version)
	}
	return nil
}

// readFooter validates the trailer and footer checksum and returns the
// footer bytes
func (rd *Reader) readFooter() ([]byte, error) {
	if rd.size < headerSize+trailerSize+footerFixedSize {
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter, "file of %d bytes is truncated", rd.size)
	}
	trailer, err := rd.readAt(rd.size-trailerSize, trailerSize, tabulaerrors.ErrorTypeCorruptFooter)
	if err != nil {
		return nil, err
	}
	if !IsColfile(trailer[4:]) {
		return nil, tabulaerrors.New(tabulaerrors.ErrorTypeCorruptFooter, "trailer magic missing, file is truncated")
	}
	footerLen := int64(binary.LittleEndian.Uint32(trailer))
	rd.dataEnd = rd.size - trailerSize - footerLen
	if footerLen < footerFixedSize || rd.dataEnd < headerSize {
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter,
			"footer length %d out of bounds for file of %d bytes", footerLen, rd.size)
	}
	footer, err := rd.readAt(rd.dataEnd, int(footerLen), tabulaerrors.ErrorTypeCorruptFooter)
	if err != nil {
		return nil, err
	}
	body := footer[:len(footer)-4]
	if checksum(body) != binary.LittleEndian.Uint32(footer[len(body):]) {
		return nil, tabulaerrors.New(tabulaerrors.ErrorTypeCorruptFooter, "footer checksum mismatch")
	}
	return footer, nil
}

func (rd *Reader) readSchema() error {
	if rd.dataEnd < headerSize+8 {
		return tabulaerrors.New(tabulaerrors.ErrorTypeCorruptFooter, "schema block missing")
	}
	lenBytes, err := rd.readAt(headerSize, 4, tabulaerrors.ErrorTypeCorruptFooter)
	if err != nil {
		return err
	}
	payloadLen := int64(binary.LittleEndian.Uint32(lenBytes))
	rd.dataStart = headerSize + 4 + payloadLen + 4
	if rd.dataStart > rd.dataEnd {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter,
			"schema block of %d bytes overruns the footer", payloadLen)
	}
	block, err := rd.readAt(headerSize+4, int(payloadLen)+4, tabulaerrors.ErrorTypeCorruptFooter)
	if err != nil {
		return err
	}
	payload := block[:payloadLen]
	if checksum(payload) != binary.LittleEndian.Uint32(block[payloadLen:]) {
		return tabulaerrors.New(tabulaerrors.ErrorTypeCorruptFooter, "schema checksum mismatch")
	}
	var s schemaBlock
	if err := s.parse(payload); err != nil {
		return err
	}
	rd.layout = s.Columns
	rd.schema = s.schema()
	return nil
}

// checkChunks verifies that every chunk lies between the schema and the
// footer and uses a known encoding
func (rd *Reader) checkChunks() error {
	next := uint64(rd.dataStart)
	for i, m := range rd.footer.Chunks {
		if m.Offset != next || m.Offset+m.Length > uint64(rd.dataEnd) || m.Length > uint64(rd.dataEnd) {
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter,
				"chunk %d at [%d, +%d) is out of place", i, m.Offset, m.Length).
				WithDetail("chunk", i)
		}
		next = m.Offset + m.Length
		for j, e := range m.Encodings {
			if e != Plain {
				return tabulaerrors.Newf(tabulaerrors.ErrorTypeUnsupportedVersion,
					"chunk %d column %q uses unsupported encoding %d", i, rd.layout[j].Name, e).
					WithDetail("chunk", i).
					WithDetail("column", rd.layout[j].Name)
			}
		}
	}
	if next != uint64(rd.dataEnd) {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter,
			"%d bytes between the last chunk and the footer", uint64(rd.dataEnd)-next)
	}
	return nil
}

func (rd *Reader) readAt(off int64, n int, errType tabulaerrors.ErrorType) ([]byte, error) {
	buf := make([]byte, n)
	read, err := rd.r.ReadAt(buf, off)
	if read == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, tabulaerrors.Newf(errType, "short read at offset %d: %d of %d bytes", off, read, n)
	}
	return nil, tabulaerrors.Wrapf(err, tabulaerrors.ErrorTypeIO, "failed to read %d bytes at offset %d", n, off)
}

// Version returns the format version of the file
func (rd *Reader) Version() uint16 { return rd.version }

// Size returns the file size in bytes
func (rd *Reader) Size() int64 { return rd.size }

// Schema returns the stored schema
func (rd *Reader) Schema() schema.Schema { return rd.schema }

// Footer returns the chunk index
func (rd *Reader) Footer() *Footer { return &rd.footer }

// NumChunks returns the number of chunks
func (rd *Reader) NumChunks() int { return rd.footer.NumChunks() }

// ReadChunk decodes chunk i into a table holding only its rows
func (rd *Reader) ReadChunk(ctx context.Context, i int) (*columnar.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "decode canceled")
	}
	if i < 0 || i >= rd.footer.NumChunks() {
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
			"chunk %d out of range [0, %d)", i, rd.footer.NumChunks())
	}
	m := rd.footer.Chunks[i]
	data, err := rd.readAt(int64(m.Offset), int(m.Length), tabulaerrors.ErrorTypeCorruptChunk)
	if err != nil {
		return nil, err
	}
	if checksum(data) != m.Checksum {
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptChunk, "chunk %d checksum mismatch", i).
			WithDetail("chunk", i)
	}
	t, err := decodeChunk(data, int(m.Rows), rd.layout)
	if err != nil {
		var te *tabulaerrors.Error
		if errors.As(err, &te) {
			te.WithDetail("chunk", i)
		}
		return nil, err
	}
	return t, nil
}

// ReadTable decodes every chunk and concatenates them in order
func (rd *Reader) ReadTable(ctx context.Context) (*columnar.Table, error) {
	n := rd.footer.NumChunks()
	if n == 0 {
		if err := ctx.Err(); err != nil {
			return nil, tabulaerrors.FromContext(err, "decode canceled")
		}
		return rd.emptyTable()
	}

	parts := make([]*columnar.Table, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rd.opts.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			t, err := rd.ReadChunk(gctx, i)
			if err != nil {
				return err
			}
			parts[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, tabulaerrors.FromContext(ctxErr, "decode canceled")
		}
		return nil, err
	}
	return columnar.Concat(parts...)
}

func (rd *Reader) emptyTable() (*columnar.Table, error) {
	cols := make([]*columnar.Column, len(rd.layout))
	for i, c := range rd.layout {
		cols[i] = columnar.NewBuilder(c.Name, c.Type, 0).Build()
	}
	return columnar.NewTable(cols...)
}

// Decode reads a complete colfile held in memory
func Decode(ctx context.Context, data []byte, opts ReaderOptions) (*columnar.Table, error) {
	rd, err := NewReader(bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return nil, err
	}
	return rd.ReadTable(ctx)
}
