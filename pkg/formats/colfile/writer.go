package colfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/pool"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// DefaultChunkSize is the number of rows per chunk when none is configured
const DefaultChunkSize = 65536

// WriterOptions configures a Writer
type WriterOptions struct {
	// ChunkSize is the maximum number of rows per chunk
	ChunkSize int
	// Workers bounds the number of chunks encoded concurrently. It does
	// not affect the output bytes.
	Workers int
	Logger  *zap.Logger
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Writer encodes tables into the colfile format
type Writer struct {
	w       io.Writer
	opts    WriterOptions
	logger  *zap.Logger
	written int64
}

// NewWriter creates a Writer that writes to w
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	opts = opts.withDefaults()
	return &Writer{
		w:      w,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "colfile_writer")),
	}
}

// BytesWritten returns the number of bytes written so far
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// WriteTable writes t as a complete file: header, schema, chunks, footer
// and trailer. Chunks are encoded concurrently and written in row order.
// On error the bytes already written are incomplete and must be discarded.
func (w *Writer) WriteTable(ctx context.Context, t *columnar.Table) (*Footer, error) {
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "encode canceled")
	}

	layout := layoutOf(t)
	head := make([]byte, 0, 256)
	head = append(head, Magic...)
	head = binary.LittleEndian.AppendUint16(head, Version)
	head = binary.LittleEndian.AppendUint16(head, 0)
	head = schemaBlock{Columns: layout}.appendTo(head)
	if err := w.write(head); err != nil {
		return nil, err
	}

	chunks, err := t.Chunks(w.opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	footer := &Footer{TotalRows: uint64(t.NumRows()), Chunks: make([]ChunkMeta, 0, len(chunks))}

	for start := 0; start < len(chunks); start += w.opts.Workers {
		end := start + w.opts.Workers
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := w.writeBatch(ctx, chunks[start:end], layout, footer); err != nil {
			return nil, err
		}
	}

	tail := footer.appendTo(nil)
	tail = binary.LittleEndian.AppendUint32(tail, uint32(len(tail)))
	tail = append(tail, Magic...)
	if err := w.write(tail); err != nil {
		return nil, err
	}

	w.logger.Debug("table encoded",
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumColumns()),
		zap.Int("chunks", len(chunks)),
		zap.Int64("bytes", w.written))
	return footer, nil
}

// writeBatch encodes a batch of chunks in parallel, then writes them in order
func (w *Writer) writeBatch(ctx context.Context, batch []columnar.Chunk, layout []columnLayout, footer *Footer) error {
	bufs := make([]*bytes.Buffer, len(batch))
	defer func() {
		for _, b := range bufs {
			if b != nil {
				pool.Buffers.Put(b)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range batch {
		i, ch := i, ch
		bufs[i] = pool.Buffers.Get()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			buf := bufs[i]
			buf.Write(appendChunk(buf.AvailableBuffer(), ch, layout))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tabulaerrors.FromContext(err, "encode canceled")
	}
	if err := ctx.Err(); err != nil {
		return tabulaerrors.FromContext(err, "encode canceled")
	}

	for i, ch := range batch {
		data := bufs[i].Bytes()
		meta := ChunkMeta{
			Offset:    uint64(w.written),
			Length:    uint64(len(data)),
			Rows:      uint32(ch.Rows),
			Checksum:  checksum(data),
			Encodings: make([]Encoding, len(layout)),
		}
		if err := w.write(data); err != nil {
			return err
		}
		footer.Chunks = append(footer.Chunks, meta)
		w.logger.Debug("chunk written",
			zap.Int("chunk", ch.Index),
			zap.Int("rows", ch.Rows),
			zap.Int("bytes", len(data)))
	}
	return nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.written += int64(n)
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write colfile")
	}
	return nil
}

// layoutOf derives the stored column layout, choosing integer widths over
// the whole table so that every chunk uses the same width
func layoutOf(t *columnar.Table) []columnLayout {
	layout := make([]columnLayout, t.NumColumns())
	for i, c := range t.Columns() {
		layout[i] = columnLayout{Name: c.Name(), Type: c.Type(), Nullable: c.Nullable()}
		if c.Type() != schema.Integer {
			continue
		}
		var lo, hi int64
		for _, v := range c.Int64s() {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		layout[i].IntWidth = intWidth(lo, hi)
	}
	return layout
}

// Encode writes t to w as a colfile
func Encode(ctx context.Context, t *columnar.Table, w io.Writer, opts WriterOptions) (*Footer, error) {
	return NewWriter(w, opts).WriteTable(ctx, t)
}
