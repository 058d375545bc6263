package columnar

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

func mustColumn(t *testing.T, name string, typ schema.DataType, values ...interface{}) *Column {
	t.Helper()
	c, err := FromValues(name, typ, values...)
	require.NoError(t, err)
	return c
}

func scoresTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(
		mustColumn(t, "id", schema.Integer, 1, 2, 3),
		mustColumn(t, "score", schema.Float, 3.5, nil, 4.25),
	)
	require.NoError(t, err)
	return table
}

func TestBuilderNullHandling(t *testing.T) {
	col, err := BuildColumn("a", schema.Integer, []string{"1", ""}, schema.NewNullSet(), schema.NewBoolTokens(nil, nil))
	require.NoError(t, err)

	assert.Equal(t, 2, col.Len())
	assert.True(t, col.IsValid(0))
	assert.False(t, col.IsValid(1))
	assert.Equal(t, []int64{1, 0}, col.Int64s())
	assert.Equal(t, 1, col.NullCount())
	assert.True(t, col.Nullable())
	assert.Nil(t, col.Value(1))
}

func TestBuilderParsesEveryType(t *testing.T) {
	nulls := schema.NewNullSet("NA")
	bools := schema.NewBoolTokens(nil, nil)

	tests := []struct {
		typ  schema.DataType
		raw  []string
		want []interface{}
	}{
		{schema.Integer, []string{"-7", "NA", "42"}, []interface{}{int64(-7), nil, int64(42)}},
		{schema.Float, []string{"1", "2.5", ""}, []interface{}{1.0, 2.5, nil}},
		{schema.Boolean, []string{"true", "FALSE", "NA"}, []interface{}{true, false, nil}},
		{schema.String, []string{"x", "", "NA"}, []interface{}{"x", nil, nil}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			col, err := BuildColumn("c", tt.typ, tt.raw, nulls, bools)
			require.NoError(t, err)
			got := make([]interface{}, col.Len())
			for i := range got {
				got[i] = col.Value(i)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilderTypeConversionError(t *testing.T) {
	b := NewBuilder("score", schema.Float, 0)
	require.NoError(t, b.AppendRaw("1.5"))
	require.NoError(t, b.AppendRaw(""))
	err := b.AppendRaw("n/a")
	require.Error(t, err)

	var te *tabulaerrors.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, tabulaerrors.ErrorTypeTypeConversion, te.Type)
	assert.Equal(t, 3, te.Details["row"])
	assert.Equal(t, "score", te.Details["column"])
	assert.Equal(t, "n/a", te.Details["raw_value"])
	assert.Equal(t, "float", te.Details["target_type"])
	assert.Equal(t, 2, b.Len(), "failed values are not appended")
}

func TestBuilderAppendTypeMismatch(t *testing.T) {
	b := NewBuilder("a", schema.Integer, 0)
	assert.Error(t, b.Append("x"))
	assert.Panics(t, func() { b.AppendString("x") })
}

func TestValidityPacking(t *testing.T) {
	valid := []bool{true, false, true, true, false, false, false, true, true, false}
	v := ValidityFromBools(valid)
	assert.Equal(t, 5, v.NullCount())

	packed := v.AppendPacked(nil, 0, len(valid))
	assert.Equal(t, []byte{0b10001101, 0b00000001}, packed)

	back := ValidityFromBytes(packed, len(valid))
	for i, want := range valid {
		assert.Equal(t, want, back.IsValid(i), "row %d", i)
	}

	assert.Equal(t, []byte{0b00000011}, v.AppendPacked(nil, 2, 3))
	assert.Equal(t, 3, v.nullsIn(4, 4))
}

func TestNewTableValidation(t *testing.T) {
	_, err := NewTable(mustColumn(t, "a", schema.Integer, 1), mustColumn(t, "a", schema.Integer, 2))
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation))

	_, err = NewTable(mustColumn(t, "a", schema.Integer, 1), mustColumn(t, "b", schema.Integer, 2, 3))
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation))

	_, err = NewTable(nil)
	assert.Error(t, err)

	empty, err := NewTable()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumRows())
}

func TestTableAccess(t *testing.T) {
	table := scoresTable(t)

	assert.Equal(t, 3, table.NumRows())
	assert.Equal(t, 2, table.NumColumns())
	assert.Equal(t, "score", table.Column(1).Name())

	col, ok := table.ColumnByName("id")
	require.True(t, ok)
	assert.Equal(t, schema.Integer, col.Type())
	_, ok = table.ColumnByName("missing")
	assert.False(t, ok)

	assert.Equal(t, schema.New(
		schema.Field{Name: "id", Type: schema.Integer},
		schema.Field{Name: "score", Type: schema.Float, Nullable: true},
	), table.Schema())
	assert.Equal(t, []interface{}{int64(2), nil}, table.Row(1))
	assert.Positive(t, table.MemoryUsage())
}

func TestTableChunks(t *testing.T) {
	table := scoresTable(t)

	chunks, err := table.Chunks(2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 2, chunks[0].Rows)
	assert.Equal(t, 2, chunks[1].Offset)
	assert.Equal(t, 1, chunks[1].Rows)

	ids := chunks[1].Column(0)
	assert.Equal(t, []int64{3}, ids.Int64s())
	scores := chunks[0].Column(1)
	assert.False(t, scores.IsValid(1))
	assert.Equal(t, 1, scores.NullCount())
	assert.Equal(t, 3.5, scores.Value(0))

	// views share the column buffer
	assert.Same(t, &table.Column(0).Int64s()[2], &ids.Int64s()[0])

	_, err = table.Chunks(0)
	assert.Error(t, err)

	empty, err := NewTable(mustColumn(t, "a", schema.String))
	require.NoError(t, err)
	none, err := empty.Chunks(10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTableEqual(t *testing.T) {
	a := scoresTable(t)
	b := scoresTable(t)
	assert.True(t, a.Equal(b))

	c, err := NewTable(
		mustColumn(t, "id", schema.Integer, 1, 2, 3),
		mustColumn(t, "score", schema.Float, 3.5, 0.0, 4.25),
	)
	require.NoError(t, err)
	assert.False(t, a.Equal(c), "validity differs")

	nan1, err := NewTable(mustColumn(t, "f", schema.Float, math.NaN()))
	require.NoError(t, err)
	nan2, err := NewTable(mustColumn(t, "f", schema.Float, math.NaN()))
	require.NoError(t, err)
	assert.True(t, nan1.Equal(nan2))
}

func TestConcat(t *testing.T) {
	a := scoresTable(t)
	chunks, err := a.Chunks(1)
	require.NoError(t, err)

	parts := make([]*Table, len(chunks))
	for i, ch := range chunks {
		cols := make([]*Column, ch.NumColumns())
		for j := range cols {
			s := ch.Column(j)
			b := NewBuilder(s.Column().Name(), s.Type(), s.Len())
			require.NoError(t, b.AppendSlice(s))
			cols[j] = b.Build()
		}
		parts[i], err = NewTable(cols...)
		require.NoError(t, err)
	}

	joined, err := Concat(parts...)
	require.NoError(t, err)
	assert.True(t, a.Equal(joined))

	other, err := NewTable(mustColumn(t, "id", schema.String, "x"))
	require.NoError(t, err)
	_, err = Concat(a, other)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeSchemaMismatch))
}
