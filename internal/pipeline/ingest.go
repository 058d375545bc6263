package pipeline

import (
	"context"
	"io"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/csv"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Ingest reads delimited text from r into a table
func (d *Driver) Ingest(ctx context.Context, r io.Reader) (*columnar.Table, error) {
	ctx, run := d.begin(ctx, "ingest", "", "")
	t, err := d.ingest(ctx, r, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return t, nil
}

// IngestPath reads delimited text from path. Compressed input is detected
// from the extension, or from the leading bytes when the extension says
// nothing.
func (d *Driver) IngestPath(ctx context.Context, path string) (*columnar.Table, error) {
	ctx, run := d.begin(ctx, "ingest", path, "")
	t, err := d.ingestPath(ctx, path, run)
	if _, err := run.finish(err); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Driver) ingestPath(ctx context.Context, path string, run *run) (*columnar.Table, error) {
	rc, err := d.store.OpenStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return d.ingestStream(ctx, path, rc, run)
}

// ingestStream decompresses r as implied by the extension of path or its
// leading bytes, then ingests it
func (d *Driver) ingestStream(ctx context.Context, path string, r io.Reader, run *run) (*columnar.Table, error) {
	src := r
	alg, _ := compression.FromPath(path)
	if alg == compression.None {
		var err error
		alg, src, err = compression.DetectReader(r)
		if err != nil {
			return nil, err
		}
	}
	if alg != compression.None {
		dec, err := compression.NewReader(src, alg)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		src = dec
		run.logger.Debug("decompressing input", zap.String("algorithm", string(alg)))
	}
	return d.ingest(ctx, src, run)
}

// ingest lexes every record, infers the column types and builds the table
func (d *Driver) ingest(ctx context.Context, r io.Reader, run *run) (*columnar.Table, error) {
	names, raw, err := d.lex(ctx, &countingReader{r: r, m: d.metrics})
	if err != nil {
		return nil, err
	}
	rows := 0
	if len(raw) > 0 {
		rows = len(raw[0])
	}
	d.metrics.AddRows(metrics.StageIngest, rows)

	var types []schema.DataType
	done := d.metrics.Time(metrics.StageInfer)
	err = d.tracer.Trace(ctx, "infer", func(ctx context.Context) error {
		var err error
		types, err = d.inferer.InferColumns(ctx, names, raw)
		return err
	})
	done()
	if err != nil {
		return nil, err
	}

	var columns []*columnar.Column
	done = d.metrics.Time(metrics.StageBuild)
	err = d.tracer.Trace(ctx, "build", func(ctx context.Context) error {
		var err error
		columns, err = d.build(ctx, names, types, raw, run)
		return err
	})
	done()
	if err != nil {
		return nil, err
	}
	t, err := columnar.NewTable(columns...)
	if err != nil {
		return nil, err
	}
	d.metrics.AddRows(metrics.StageBuild, t.NumRows())

	run.result.Rows = t.NumRows()
	run.result.Columns = t.NumColumns()
	run.logger.Debug("table built",
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumColumns()),
		zap.Stringer("schema", t.Schema()),
		zap.Stringer("inference", d.inferer))
	return t, nil
}

// lex gathers the raw values of every column, checking ctx between records
func (d *Driver) lex(ctx context.Context, r io.Reader) ([]string, [][]string, error) {
	rd, err := csv.NewReader(r, d.dialect)
	if err != nil {
		return nil, nil, err
	}
	names, err := rd.Header()
	if err != nil {
		return nil, nil, err
	}
	raw := make([][]string, len(names))
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, tabulaerrors.FromContext(err, "ingest canceled")
		}
		rec, err := rd.Next()
		if err == io.EOF {
			return names, raw, nil
		}
		if err != nil {
			return nil, nil, err
		}
		for i, f := range rec.Fields {
			raw[i] = append(raw[i], f)
		}
	}
}

// build converts the raw columns concurrently. With the widen policy a
// column whose sampled type fails to convert is re-inferred from all of its
// values and rebuilt; with the fail policy the first failure is returned.
func (d *Driver) build(ctx context.Context, names []string, types []schema.DataType, raw [][]string, run *run) ([]*columnar.Column, error) {
	columns := make([]*columnar.Column, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(d.cfg.Inference.Workers))

	for i := range names {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return tabulaerrors.FromContext(err, "build canceled")
			}
			col, err := d.buildColumn(names[i], types[i], raw[i], run)
			if err != nil {
				return err
			}
			columns[i] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return columns, nil
}

func (d *Driver) buildColumn(name string, typ schema.DataType, raw []string, run *run) (*columnar.Column, error) {
	nulls, bools := d.inferer.Nulls(), d.inferer.Bools()
	col, err := columnar.BuildColumn(name, typ, raw, nulls, bools)
	if err == nil {
		return col, nil
	}
	if d.cfg.Builder.OnConversionError != config.ConversionWiden || !tabulaerrors.IsType(err, tabulaerrors.ErrorTypeTypeConversion) {
		return nil, err
	}

	widened := d.inferer.InferFull(raw)
	run.logger.Warn("widening column after conversion failure",
		zap.String("column", name),
		zap.String("sampled_type", typ.String()),
		zap.String("type", widened.String()),
		zap.Error(err))
	return columnar.BuildColumn(name, widened, raw, nulls, bools)
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// countingReader counts the bytes read from the input
type countingReader struct {
	r io.Reader
	m *metrics.Collector
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.m.AddBytes(metrics.DirectionRead, int64(n))
	return n, err
}
