package columnar

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func column(t *testing.T, name string, typ schema.DataType, values ...interface{}) *columnar.Column {
	t.Helper()
	c, err := columnar.FromValues(name, typ, values...)
	require.NoError(t, err)
	return c
}

func table(t *testing.T, cols ...*columnar.Column) *columnar.Table {
	t.Helper()
	tbl, err := columnar.NewTable(cols...)
	require.NoError(t, err)
	return tbl
}

func mixed(t *testing.T, rows int) *columnar.Table {
	t.Helper()
	ids := columnar.NewBuilder("id", schema.Integer, rows)
	names := columnar.NewBuilder("name", schema.String, rows)
	values := columnar.NewBuilder("value", schema.Float, rows)
	flags := columnar.NewBuilder("flag", schema.Boolean, rows)
	for i := 0; i < rows; i++ {
		ids.AppendInt64(int64(i) - 100)
		names.AppendString(fmt.Sprintf("name_%d", i))
		if i%5 == 2 {
			values.AppendNull()
			flags.AppendNull()
			continue
		}
		values.AppendFloat64(float64(i) / 8)
		flags.AppendBool(i%3 == 0)
	}
	return table(t, ids.Build(), names.Build(), values.Build(), flags.Build())
}

func write(t *testing.T, tbl *columnar.Table, format Format, opts WriterOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(testutil.TestContext(t), &buf, tbl, format, opts))
	return buf.Bytes()
}

func read(t *testing.T, data []byte, format Format) (*columnar.Table, error) {
	t.Helper()
	return Read(testutil.TestContext(t), bytes.NewReader(data), int64(len(data)), format, ReaderOptions{})
}

func TestRoundTrip(t *testing.T) {
	tables := map[string]*columnar.Table{
		"scores": table(t,
			column(t, "id", schema.Integer, 1, 2, 3),
			column(t, "score", schema.Float, 3.5, nil, 4.25),
		),
		"mixed": mixed(t, 250),
		"empty": table(t, column(t, "a", schema.Integer), column(t, "b", schema.String)),
		"strings": table(t,
			column(t, "city", schema.String, "Zürich", "", nil, "a,b\"c"),
		),
	}
	for _, format := range Formats {
		for name, tbl := range tables {
			t.Run(string(format)+"/"+name, func(t *testing.T) {
				data := write(t, tbl, format, WriterOptions{BatchSize: 100, Logger: testutil.TestLogger(t)})
				detected, ok := Detect(data)
				require.True(t, ok)
				assert.Equal(t, format, detected)

				got, err := read(t, data, format)
				require.NoError(t, err)
				assert.True(t, tbl.Equal(got), "round trip changed the table")
				assert.Equal(t, tbl.Schema(), got.Schema())
			})
		}
	}
}

func TestCompression(t *testing.T) {
	tbl := mixed(t, 64)
	for _, format := range Formats {
		for _, codec := range GetFormatInfo(format).Compressions {
			t.Run(string(format)+"/"+codec, func(t *testing.T) {
				data := write(t, tbl, format, WriterOptions{Compression: codec})
				got, err := read(t, data, format)
				require.NoError(t, err)
				assert.True(t, tbl.Equal(got))
			})
		}
	}

	var buf bytes.Buffer
	err := Write(testutil.TestContext(t), &buf, tbl, Avro, WriterOptions{Compression: "zstd"})
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation))
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"arrow":    Arrow,
		".arrow":   Arrow,
		"feather":  Arrow,
		"PARQUET":  Parquet,
		".parquet": Parquet,
		"avro":     Avro,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("orc")
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation))
}

func TestDetect(t *testing.T) {
	_, ok := Detect([]byte("TBLC\x01\x00"))
	assert.False(t, ok)
	_, ok = Detect(nil)
	assert.False(t, ok)
	f, ok := Detect([]byte("PAR1...."))
	assert.True(t, ok)
	assert.Equal(t, Parquet, f)
}

func TestInvalidInput(t *testing.T) {
	garbage := []byte("id,score\n1,2\n3,4\n")
	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			_, err := read(t, garbage, format)
			require.Error(t, err)
			assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeInvalidFormat), err.Error())
		})
	}
}

func TestCancellation(t *testing.T) {
	tbl := mixed(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, format := range Formats {
		var buf bytes.Buffer
		err := Write(ctx, &buf, tbl, format, WriterOptions{})
		require.Error(t, err)
		assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeCanceled))

		data := write(t, tbl, format, WriterOptions{})
		_, err = Read(ctx, bytes.NewReader(data), int64(len(data)), format, ReaderOptions{})
		require.Error(t, err)
		assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeCanceled))
	}
}

func TestRecordConversion(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	tbl := mixed(t, 20)
	rec, err := NewRecord(mem, tbl)
	require.NoError(t, err)
	defer rec.Release()

	assert.EqualValues(t, 20, rec.NumRows())
	assert.EqualValues(t, 4, rec.NumCols())
	assert.True(t, rec.Schema().Field(2).Nullable)
	assert.False(t, rec.Schema().Field(0).Nullable)

	got, err := FromRecords(rec.Schema(), rec)
	require.NoError(t, err)
	assert.True(t, tbl.Equal(got))
}

func TestAvroNames(t *testing.T) {
	tests := map[string]string{
		"id":         "id",
		"first name": "first_name",
		"2024":       "_2024",
		"":           "_",
		"a-b.c":      "a_b_c",
	}
	for in, want := range tests {
		assert.Equal(t, want, avroName(in), in)
	}

	_, err := avroSchema(schema.New(
		schema.Field{Name: "a b", Type: schema.Integer},
		schema.Field{Name: "a-b", Type: schema.Integer},
	))
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation))
}

func TestFormatInfo(t *testing.T) {
	for _, format := range Formats {
		info := GetFormatInfo(format)
		require.NotNil(t, info)
		got, err := ParseFormat(info.FileExtension)
		require.NoError(t, err)
		assert.Equal(t, format, got)
	}
	assert.Nil(t, GetFormatInfo("orc"))
}
