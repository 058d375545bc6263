package columnar

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// ArrowSchema maps a table schema to an Arrow schema
func ArrowSchema(s schema.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: f.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t schema.DataType) arrow.DataType {
	switch t {
	case schema.Integer:
		return arrow.PrimitiveTypes.Int64
	case schema.Float:
		return arrow.PrimitiveTypes.Float64
	case schema.Boolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// fromArrowType maps the Arrow types a table column can hold
func fromArrowType(dt arrow.DataType) (schema.DataType, bool) {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64, arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return schema.Integer, true
	case arrow.FLOAT32, arrow.FLOAT64:
		return schema.Float, true
	case arrow.BOOL:
		return schema.Boolean, true
	case arrow.STRING, arrow.LARGE_STRING:
		return schema.String, true
	}
	return 0, false
}

// NewRecord copies t into a single Arrow record. The caller releases it.
func NewRecord(mem memory.Allocator, t *columnar.Table) (arrow.Record, error) {
	sch := ArrowSchema(t.Schema())
	if t.NumRows() == 0 {
		rb := array.NewRecordBuilder(mem, sch)
		defer rb.Release()
		return rb.NewRecord(), nil
	}
	chunks, err := t.Chunks(t.NumRows())
	if err != nil {
		return nil, err
	}
	return chunkRecord(mem, sch, chunks[0]), nil
}

func chunkRecord(mem memory.Allocator, sch *arrow.Schema, ch columnar.Chunk) arrow.Record {
	rb := array.NewRecordBuilder(mem, sch)
	defer rb.Release()
	for i := 0; i < ch.NumColumns(); i++ {
		s := ch.Column(i)
		valid := validOf(s)
		switch b := rb.Field(i).(type) {
		case *array.Int64Builder:
			b.AppendValues(s.Int64s(), valid)
		case *array.Float64Builder:
			b.AppendValues(s.Float64s(), valid)
		case *array.BooleanBuilder:
			b.AppendValues(s.Bools(), valid)
		case *array.StringBuilder:
			b.AppendValues(s.Strings(), valid)
		}
	}
	return rb.NewRecord()
}

// validOf returns the per-row validity of s, or nil when every row is valid
func validOf(s columnar.ColumnSlice) []bool {
	if s.NullCount() == 0 {
		return nil
	}
	valid := make([]bool, s.Len())
	for i := range valid {
		valid[i] = s.IsValid(i)
	}
	return valid
}

// FromRecords builds a table from Arrow records sharing sch
func FromRecords(sch *arrow.Schema, records ...arrow.Record) (*columnar.Table, error) {
	tb, err := newTableBuilder(sch, Arrow)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := tb.appendRecord(rec); err != nil {
			return nil, err
		}
	}
	return tb.build()
}

// tableBuilder accumulates Arrow record batches into table columns
type tableBuilder struct {
	format   Format
	builders []*columnar.Builder
}

func newTableBuilder(sch *arrow.Schema, format Format) (*tableBuilder, error) {
	tb := &tableBuilder{format: format, builders: make([]*columnar.Builder, sch.NumFields())}
	for i, f := range sch.Fields() {
		t, ok := fromArrowType(f.Type)
		if !ok {
			return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
				"%s: column %q has unsupported type %s", format, f.Name, f.Type).
				WithDetail("format", string(format)).
				WithDetail("column", f.Name)
		}
		tb.builders[i] = columnar.NewBuilder(f.Name, t, 0)
	}
	return tb, nil
}

func (tb *tableBuilder) appendRecord(rec arrow.Record) error {
	if int(rec.NumCols()) != len(tb.builders) {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
			"%s: record batch has %d columns, want %d", tb.format, rec.NumCols(), len(tb.builders))
	}
	for i, b := range tb.builders {
		if err := appendArray(b, rec.Column(i)); err != nil {
			return err
		}
	}
	return nil
}

func (tb *tableBuilder) build() (*columnar.Table, error) {
	cols := make([]*columnar.Column, len(tb.builders))
	for i, b := range tb.builders {
		cols[i] = b.Build()
	}
	return columnar.NewTable(cols...)
}

type values[T any] interface {
	Len() int
	IsNull(i int) bool
	Value(i int) T
}

func appendInts[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32](b *columnar.Builder, a values[T]) {
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.AppendInt64(int64(a.Value(i)))
	}
}

func appendFloats[T float32 | float64](b *columnar.Builder, a values[T]) {
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.AppendFloat64(float64(a.Value(i)))
	}
}

func appendAll[T bool | string](b *columnar.Builder, a values[T], add func(T)) {
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			b.AppendNull()
			continue
		}
		add(a.Value(i))
	}
}

func appendArray(b *columnar.Builder, arr arrow.Array) error {
	switch a := arr.(type) {
	case *array.Int8:
		appendInts[int8](b, a)
	case *array.Int16:
		appendInts[int16](b, a)
	case *array.Int32:
		appendInts[int32](b, a)
	case *array.Int64:
		appendInts[int64](b, a)
	case *array.Uint8:
		appendInts[uint8](b, a)
	case *array.Uint16:
		appendInts[uint16](b, a)
	case *array.Uint32:
		appendInts[uint32](b, a)
	case *array.Float32:
		appendFloats[float32](b, a)
	case *array.Float64:
		appendFloats[float64](b, a)
	case *array.Boolean:
		appendAll[bool](b, a, b.AppendBool)
	case *array.String:
		appendAll[string](b, a, b.AppendString)
	case *array.LargeString:
		appendAll[string](b, a, b.AppendString)
	default:
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch, "unsupported arrow array %s", arr.DataType())
	}
	return nil
}

func writeArrow(ctx context.Context, w io.Writer, t *columnar.Table, opts WriterOptions) error {
	mem := memory.NewGoAllocator()
	sch := ArrowSchema(t.Schema())
	ipcOpts := []ipc.Option{ipc.WithSchema(sch), ipc.WithAllocator(mem)}
	switch opts.Compression {
	case "", "none":
	case "lz4":
		ipcOpts = append(ipcOpts, ipc.WithLZ4())
	case "zstd":
		ipcOpts = append(ipcOpts, ipc.WithZstd())
	default:
		return unknownCompression(Arrow, opts.Compression)
	}

	fw, err := ipc.NewFileWriter(w, ipcOpts...)
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to create arrow writer")
	}
	err = each(ctx, t, opts.BatchSize, func(ch columnar.Chunk) error {
		rec := chunkRecord(mem, sch, ch)
		defer rec.Release()
		if err := fw.Write(rec); err != nil {
			return tabulaerrors.Wrapf(err, tabulaerrors.ErrorTypeIO, "failed to write record batch %d", ch.Index)
		}
		return nil
	})
	if err != nil {
		_ = fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to finish arrow file")
	}
	return nil
}

func readArrow(ctx context.Context, r *io.SectionReader, opts ReaderOptions) (*columnar.Table, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, invalid(err, Arrow, "cannot open file")
	}
	defer fr.Close()

	tb, err := newTableBuilder(fr.Schema(), Arrow)
	if err != nil {
		return nil, err
	}
	for i := 0; i < fr.NumRecords(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, tabulaerrors.FromContext(err, "import canceled")
		}
		rec, err := fr.Record(i)
		if err != nil {
			return nil, invalid(err, Arrow, "cannot read record batch")
		}
		if err := tb.appendRecord(rec); err != nil {
			return nil, err
		}
	}
	return tb.build()
}

func unknownCompression(format Format, name string) error {
	return tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "%s does not support compression %q", format, name).
		WithDetail("format", string(format)).
		WithDetail("compression", name)
}
