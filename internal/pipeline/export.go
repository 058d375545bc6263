package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/csv"
	interop "github.com/ajitpratap0/tabula/pkg/formats/columnar"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/render"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// FormatCSV is the delimited text export format
const FormatCSV = "csv"

// ExportFormat resolves an export format name. An empty name is derived
// from the extension of out, ignoring any compression extension.
func ExportFormat(name, out string) (string, error) {
	if name == "" {
		_, base := compression.FromPath(out)
		name = filepath.Ext(base)
		if name == "" {
			return "", tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
				"cannot derive export format from %q", out).WithDetail("path", out)
		}
	}
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "csv", "tsv", "txt":
		return FormatCSV, nil
	}
	f, err := interop.ParseFormat(name)
	if err != nil {
		return "", err
	}
	return string(f), nil
}

// Export loads in and writes it to out as arrow, parquet, avro or csv. CSV
// output uses the configured dialect and is compressed when out carries a
// compression extension.
func (d *Driver) Export(ctx context.Context, in, out, format string) (*Result, error) {
	ctx, run := d.begin(ctx, "export", in, out)
	err := func() error {
		f, err := ExportFormat(format, out)
		if err != nil {
			return err
		}
		run.result.Format = f
		t, err := d.load(ctx, in, run)
		if err != nil {
			return err
		}
		return d.publish(ctx, out, func(w io.Writer) error {
			return d.export(ctx, t, w, out, f, run)
		})
	}()
	return run.finish(err)
}

// ExportTo writes t to w in format
func (d *Driver) ExportTo(ctx context.Context, t *columnar.Table, w io.Writer, format string) error {
	ctx, run := d.begin(ctx, "export", "", "")
	f, err := ExportFormat(format, "")
	if err == nil {
		err = d.export(ctx, t, w, "", f, run)
	}
	_, err = run.finish(err)
	return err
}

func (d *Driver) export(ctx context.Context, t *columnar.Table, w io.Writer, out, format string, run *run) error {
	defer d.metrics.Time(metrics.StageExport)()
	cw := &byteCounter{w: w}
	var err error
	if format == FormatCSV {
		err = d.writeCSV(ctx, t, cw, out)
	} else {
		err = interop.Write(ctx, cw, t, interop.Format(format), interop.WriterOptions{
			BatchSize: d.cfg.Codec.ChunkSize,
			Logger:    run.logger,
		})
	}
	if err != nil {
		return err
	}
	d.metrics.AddRows(metrics.StageExport, t.NumRows())
	d.metrics.AddBytes(metrics.DirectionWrite, cw.n)
	run.result.Rows = t.NumRows()
	run.result.Columns = t.NumColumns()
	run.result.Bytes = cw.n
	return nil
}

// writeCSV writes t as delimited text. Nulls are written as empty fields.
func (d *Driver) writeCSV(ctx context.Context, t *columnar.Table, w io.Writer, out string) error {
	alg, _ := compression.FromPath(out)
	dst, err := compression.NewWriter(w, alg, compression.Default)
	if err != nil {
		return err
	}
	cw, err := csv.NewWriter(dst, d.dialect)
	if err != nil {
		return err
	}

	fields := make([]string, t.NumColumns())
	if d.dialect.Header {
		for i, c := range t.Columns() {
			fields[i] = c.Name()
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	for r := 0; r < t.NumRows(); r++ {
		if r%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return tabulaerrors.FromContext(err, "export canceled")
			}
		}
		for i, c := range t.Columns() {
			if !c.IsValid(r) {
				fields[i] = ""
				continue
			}
			fields[i] = render.FormatValue(c.Value(r))
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	if err := cw.Flush(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to finish compressed output")
	}
	return nil
}

// byteCounter counts the bytes written to an output
type byteCounter struct {
	w io.Writer
	n int64
}

func (c *byteCounter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
