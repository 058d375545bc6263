package pipeline

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/formats/colfile"
	interop "github.com/ajitpratap0/tabula/pkg/formats/columnar"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/pool"
	"github.com/ajitpratap0/tabula/pkg/storage"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

func (d *Driver) writerOptions(run *run) colfile.WriterOptions {
	return colfile.WriterOptions{
		ChunkSize: d.cfg.Codec.ChunkSize,
		Workers:   d.cfg.Codec.Workers,
		Logger:    run.logger,
	}
}

func (d *Driver) readerOptions(run *run) colfile.ReaderOptions {
	return colfile.ReaderOptions{
		ExpectedSchema: d.expected,
		Workers:        d.cfg.Codec.Workers,
		Logger:         run.logger,
	}
}

// Encode writes t to w as a colfile
func (d *Driver) Encode(ctx context.Context, t *columnar.Table, w io.Writer) (*colfile.Footer, error) {
	ctx, run := d.begin(ctx, "encode", "", "")
	footer, err := d.encode(ctx, t, w, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return footer, nil
}

func (d *Driver) encode(ctx context.Context, t *columnar.Table, w io.Writer, run *run) (*colfile.Footer, error) {
	defer d.metrics.Time(metrics.StageEncode)()
	cw := colfile.NewWriter(w, d.writerOptions(run))
	footer, err := cw.WriteTable(ctx, t)
	if err != nil {
		return nil, err
	}
	d.metrics.AddRows(metrics.StageEncode, t.NumRows())
	d.metrics.AddChunks(metrics.DirectionWrite, footer.NumChunks())
	d.metrics.AddBytes(metrics.DirectionWrite, cw.BytesWritten())
	run.result.Rows = t.NumRows()
	run.result.Columns = t.NumColumns()
	run.result.Chunks = footer.NumChunks()
	run.result.Bytes = cw.BytesWritten()
	return footer, nil
}

// WriteTable encodes t to path. The output appears only if the whole table
// was written; on any error nothing is published.
func (d *Driver) WriteTable(ctx context.Context, t *columnar.Table, path string) (*colfile.Footer, error) {
	ctx, run := d.begin(ctx, "write", "", path)
	footer, err := d.writeTable(ctx, t, path, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return footer, nil
}

func (d *Driver) writeTable(ctx context.Context, t *columnar.Table, path string, run *run) (*colfile.Footer, error) {
	var footer *colfile.Footer
	err := d.publish(ctx, path, func(w io.Writer) error {
		if !d.cfg.Codec.Verify {
			var err error
			footer, err = d.encode(ctx, t, w, run)
			return err
		}

		buf := pool.Buffers.Get()
		defer pool.Buffers.Put(buf)
		var err error
		if footer, err = d.encode(ctx, t, buf, run); err != nil {
			return err
		}
		if err := d.verify(ctx, buf.Bytes(), t, run); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write colfile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return footer, nil
}

// verify decodes freshly encoded bytes and compares them with the source
func (d *Driver) verify(ctx context.Context, data []byte, t *columnar.Table, run *run) error {
	got, err := colfile.Decode(ctx, data, colfile.ReaderOptions{Workers: d.cfg.Codec.Workers, Logger: run.logger})
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeInternal, "encoded colfile does not decode")
	}
	if !got.Equal(t) {
		return tabulaerrors.New(tabulaerrors.ErrorTypeInternal, "encoded colfile does not round trip")
	}
	run.logger.Debug("colfile verified", zap.Int("bytes", len(data)))
	return nil
}

// publish runs fn against a sink for path and commits it only when fn
// succeeds
func (d *Driver) publish(ctx context.Context, path string, fn func(w io.Writer) error) error {
	sink, err := d.store.Create(ctx, path)
	if err != nil {
		return err
	}
	defer sink.Abort()

	if err := fn(sink); err != nil {
		return err
	}
	return sink.Commit(ctx)
}

// ReadTable decodes the colfile at path
func (d *Driver) ReadTable(ctx context.Context, path string) (*columnar.Table, error) {
	ctx, run := d.begin(ctx, "read", path, "")
	t, err := d.readTable(ctx, path, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Driver) readTable(ctx context.Context, path string, run *run) (*columnar.Table, error) {
	src, err := d.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return d.decode(ctx, src, run)
}

func (d *Driver) decode(ctx context.Context, src storage.Source, run *run) (*columnar.Table, error) {
	defer d.metrics.Time(metrics.StageDecode)()
	rd, err := colfile.NewReader(src, src.Size(), d.readerOptions(run))
	if err != nil {
		return nil, err
	}
	t, err := rd.ReadTable(ctx)
	if err != nil {
		return nil, err
	}
	d.metrics.AddRows(metrics.StageDecode, t.NumRows())
	d.metrics.AddChunks(metrics.DirectionRead, rd.NumChunks())
	d.metrics.AddBytes(metrics.DirectionRead, src.Size())
	run.result.Rows = t.NumRows()
	run.result.Columns = t.NumColumns()
	run.result.Chunks = rd.NumChunks()
	return t, nil
}

// Inspect validates the colfile at path and returns its layout
func (d *Driver) Inspect(ctx context.Context, path string) (*colfile.Info, error) {
	ctx, run := d.begin(ctx, "inspect", path, "")
	info, err := d.inspect(ctx, path, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return info, nil
}

func (d *Driver) inspect(ctx context.Context, path string, run *run) (*colfile.Info, error) {
	src, err := d.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	rd, err := colfile.NewReader(src, src.Size(), d.readerOptions(run))
	if err != nil {
		return nil, err
	}
	run.result.Rows = int(rd.Footer().TotalRows)
	run.result.Columns = rd.Schema().Len()
	run.result.Chunks = rd.NumChunks()
	run.result.Bytes = rd.Size()
	return rd.Info(), nil
}

// Load reads path whatever its format: a colfile, an Arrow, Parquet or
// Avro file, or else delimited text, possibly compressed
func (d *Driver) Load(ctx context.Context, path string) (*columnar.Table, error) {
	ctx, run := d.begin(ctx, "load", path, "")
	t, err := d.load(ctx, path, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Driver) load(ctx context.Context, path string, run *run) (*columnar.Table, error) {
	src, err := d.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head := make([]byte, 8)
	n, err := src.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to read input header").
			WithDetail("path", path)
	}
	head = head[:n]

	if colfile.IsColfile(head) {
		run.result.Format = "colfile"
		return d.decode(ctx, src, run)
	}
	if format, ok := interop.Detect(head); ok {
		run.result.Format = string(format)
		defer d.metrics.Time(metrics.StageDecode)()
		t, err := interop.Read(ctx, src, src.Size(), format, interop.ReaderOptions{Logger: run.logger})
		if err != nil {
			return nil, err
		}
		d.metrics.AddRows(metrics.StageDecode, t.NumRows())
		d.metrics.AddBytes(metrics.DirectionRead, src.Size())
		run.result.Rows = t.NumRows()
		run.result.Columns = t.NumColumns()
		return t, nil
	}

	run.result.Format = "text"
	return d.ingestStream(ctx, path, io.NewSectionReader(src, 0, src.Size()), run)
}

// Import ingests delimited text from in and writes it to out as a colfile
func (d *Driver) Import(ctx context.Context, in, out string) (*Result, error) {
	ctx, run := d.begin(ctx, "import", in, out)
	err := func() error {
		t, err := d.ingestPath(ctx, in, run)
		if err != nil {
			return err
		}
		_, err = d.writeTable(ctx, t, out, run)
		return err
	}()
	return run.finish(err)
}

// Convert loads in in any supported format and writes it to out as a
// colfile
func (d *Driver) Convert(ctx context.Context, in, out string) (*Result, error) {
	ctx, run := d.begin(ctx, "convert", in, out)
	err := func() error {
		t, err := d.load(ctx, in, run)
		if err != nil {
			return err
		}
		_, err = d.writeTable(ctx, t, out, run)
		return err
	}()
	return run.finish(err)
}
