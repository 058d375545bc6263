package columnar

import (
	"context"
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

func parquetCompression(name string) (compress.Compression, error) {
	switch name {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "none":
		return compress.Codecs.Uncompressed, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	}
	return compress.Codecs.Uncompressed, unknownCompression(Parquet, name)
}

// writeParquet writes one row group per batch
func writeParquet(ctx context.Context, w io.Writer, t *columnar.Table, opts WriterOptions) error {
	codec, err := parquetCompression(opts.Compression)
	if err != nil {
		return err
	}
	mem := memory.NewGoAllocator()
	sch := ArrowSchema(t.Schema())
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithMaxRowGroupLength(int64(opts.BatchSize)),
		parquet.WithCreatedBy("tabula"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(sch, w, props, arrowProps)
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to create parquet writer")
	}
	err = each(ctx, t, opts.BatchSize, func(ch columnar.Chunk) error {
		rec := chunkRecord(mem, sch, ch)
		defer rec.Release()
		if err := fw.Write(rec); err != nil {
			return tabulaerrors.Wrapf(err, tabulaerrors.ErrorTypeIO, "failed to write row group %d", ch.Index)
		}
		return nil
	})
	if err != nil {
		_ = fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to finish parquet file")
	}
	return nil
}

func readParquet(ctx context.Context, r *io.SectionReader, opts ReaderOptions) (*columnar.Table, error) {
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, invalid(err, Parquet, "cannot open file")
	}
	defer pf.Close()

	mem := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(opts.BatchSize)}, mem)
	if err != nil {
		return nil, invalid(err, Parquet, "cannot map schema")
	}
	sch, err := fr.Schema()
	if err != nil {
		return nil, invalid(err, Parquet, "cannot map schema")
	}
	tb, err := newTableBuilder(sch, Parquet)
	if err != nil {
		return nil, err
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, invalid(err, Parquet, "cannot read row groups")
	}
	defer rr.Release()
	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, tabulaerrors.FromContext(err, "import canceled")
		}
		if err := tb.appendRecord(rr.Record()); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, tabulaerrors.FromContext(err, "import canceled")
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, invalid(err, Parquet, "cannot read row groups")
	}
	opts.Logger.Debug("parquet decoded",
		zap.String("component", "columnar_reader"),
		zap.Int("row_groups", pf.NumRowGroups()),
		zap.Int64("rows", pf.NumRows()))
	return tb.build()
}
