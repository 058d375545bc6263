package columnar

import (
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Table is an immutable ordered set of equal-length columns with unique
// names. Columns are owned by the table and share its lifetime.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable validates columns and assembles a table. A table without
// columns has zero rows.
func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: make([]*Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c == nil {
			return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "column %d is nil", i)
		}
		if _, dup := t.index[c.name]; dup {
			return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "duplicate column name %q", c.name).
				WithDetail("column", c.name)
		}
		if i > 0 && c.rows != t.rows {
			return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
				"column %q has %d rows, expected %d", c.name, c.rows, t.rows).
				WithDetail("column", c.name)
		}
		t.rows = c.rows
		t.index[c.name] = i
		t.columns[i] = c
	}
	return t, nil
}

// NumRows returns the shared row count
func (t *Table) NumRows() int { return t.rows }

// NumColumns returns the number of columns
func (t *Table) NumColumns() int { return len(t.columns) }

// Column returns the column at index i
func (t *Table) Column(i int) *Column { return t.columns[i] }

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column { return t.columns }

// ColumnByName returns the column with the given name
func (t *Table) ColumnByName(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Schema derives the table schema
func (t *Table) Schema() schema.Schema {
	fields := make([]schema.Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = c.Field()
	}
	return schema.Schema{Fields: fields}
}

// Row returns row i as one value per column, nil for nulls
func (t *Table) Row(i int) []interface{} {
	row := make([]interface{}, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Value(i)
	}
	return row
}

// MemoryUsage estimates the bytes held by all columns
func (t *Table) MemoryUsage() int64 {
	var total int64
	for _, c := range t.columns {
		total += c.MemoryUsage()
	}
	return total
}

// Equal reports whether both tables have equal columns in the same order
func (t *Table) Equal(o *Table) bool {
	if t.rows != o.rows || len(t.columns) != len(o.columns) {
		return false
	}
	for i := range t.columns {
		if !t.columns[i].Equal(o.columns[i]) {
			return false
		}
	}
	return true
}

// Chunk is a contiguous row range of a table
type Chunk struct {
	Index  int
	Offset int
	Rows   int
	table  *Table
}

// NumColumns returns the number of columns
func (c Chunk) NumColumns() int { return len(c.table.columns) }

// Column returns a view of column i restricted to the chunk rows
func (c Chunk) Column(i int) ColumnSlice {
	return c.table.columns[i].Slice(c.Offset, c.Rows)
}

// Chunks splits the table into consecutive views of at most n rows. A table
// without rows has no chunks.
func (t *Table) Chunks(n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "chunk size must be positive, got %d", n)
	}
	chunks := make([]Chunk, 0, (t.rows+n-1)/n)
	for off := 0; off < t.rows; off += n {
		rows := n
		if off+rows > t.rows {
			rows = t.rows - off
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Offset: off, Rows: rows, table: t})
	}
	return chunks, nil
}

// Concat appends tables with identical column names and types into one
// table. The inputs are left unchanged.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return NewTable()
	}
	first := tables[0]
	total := 0
	for i, t := range tables {
		if err := sameLayout(first, t); err != nil {
			return nil, err.WithDetail("table", i)
		}
		total += t.rows
	}
	if len(tables) == 1 {
		return first, nil
	}

	columns := make([]*Column, first.NumColumns())
	for ci, c := range first.columns {
		b := NewBuilder(c.name, c.typ, total)
		for _, t := range tables {
			col := t.columns[ci]
			if err := b.AppendSlice(col.Slice(0, col.rows)); err != nil {
				return nil, err
			}
		}
		columns[ci] = b.Build()
	}
	return NewTable(columns...)
}

func sameLayout(a, b *Table) *tabulaerrors.Error {
	if len(a.columns) != len(b.columns) {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
			"cannot concatenate %d columns with %d", len(a.columns), len(b.columns))
	}
	for i := range a.columns {
		if a.columns[i].name != b.columns[i].name || a.columns[i].typ != b.columns[i].typ {
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
				"column %d differs: %s:%s and %s:%s", i,
				a.columns[i].name, a.columns[i].typ, b.columns[i].name, b.columns[i].typ)
		}
	}
	return nil
}
