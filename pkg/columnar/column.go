package columnar

import (
	"math"

	"github.com/ajitpratap0/tabula/pkg/schema"
)

// Column is an immutable named sequence of typed values with a validity
// bitmap. Exactly one value buffer is populated, selected by the type.
// Null slots hold the type's zero value.
type Column struct {
	name     string
	typ      schema.DataType
	rows     int
	ints     []int64
	floats   []float64
	bools    []bool
	strs     []string
	validity *Validity
}

// Name returns the column name
func (c *Column) Name() string { return c.name }

// Type returns the column type
func (c *Column) Type() schema.DataType { return c.typ }

// Len returns the number of rows
func (c *Column) Len() int { return c.rows }

// NullCount returns the number of null rows
func (c *Column) NullCount() int { return c.validity.NullCount() }

// Nullable reports whether the column holds at least one null
func (c *Column) Nullable() bool { return c.validity.NullCount() > 0 }

// Validity returns the validity bitmap
func (c *Column) Validity() *Validity { return c.validity }

// IsValid reports whether row i holds a value
func (c *Column) IsValid(i int) bool { return c.validity.IsValid(i) }

// Field returns the schema field describing the column
func (c *Column) Field() schema.Field {
	return schema.Field{Name: c.name, Type: c.typ, Nullable: c.Nullable()}
}

// Int64s returns the value buffer of an Integer column. It must not be modified.
func (c *Column) Int64s() []int64 { return c.ints }

// Float64s returns the value buffer of a Float column. It must not be modified.
func (c *Column) Float64s() []float64 { return c.floats }

// Bools returns the value buffer of a Boolean column. It must not be modified.
func (c *Column) Bools() []bool { return c.bools }

// Strings returns the value buffer of a String column. It must not be modified.
func (c *Column) Strings() []string { return c.strs }

// Value returns row i as int64, float64, bool or string, or nil when null
func (c *Column) Value(i int) interface{} {
	if !c.validity.IsValid(i) {
		return nil
	}
	switch c.typ {
	case schema.Integer:
		return c.ints[i]
	case schema.Float:
		return c.floats[i]
	case schema.Boolean:
		return c.bools[i]
	default:
		return c.strs[i]
	}
}

// Slice returns a view of rows [off, off+n). No data is copied.
func (c *Column) Slice(off, n int) ColumnSlice {
	return ColumnSlice{col: c, off: off, n: n}
}

// MemoryUsage estimates the bytes held by the column buffers
func (c *Column) MemoryUsage() int64 {
	usage := int64(c.rows+7) / 8
	switch c.typ {
	case schema.Integer:
		usage += int64(len(c.ints)) * 8
	case schema.Float:
		usage += int64(len(c.floats)) * 8
	case schema.Boolean:
		usage += int64(len(c.bools))
	default:
		for _, s := range c.strs {
			usage += int64(len(s)) + 16
		}
	}
	return usage
}

// Equal reports whether both columns have the same name, type, validity
// and values. Null slots are not compared and floats compare bitwise.
func (c *Column) Equal(o *Column) bool {
	if c.name != o.name || c.typ != o.typ || c.rows != o.rows {
		return false
	}
	for i := 0; i < c.rows; i++ {
		valid := c.validity.IsValid(i)
		if valid != o.validity.IsValid(i) {
			return false
		}
		if !valid {
			continue
		}
		switch c.typ {
		case schema.Integer:
			if c.ints[i] != o.ints[i] {
				return false
			}
		case schema.Float:
			if math.Float64bits(c.floats[i]) != math.Float64bits(o.floats[i]) {
				return false
			}
		case schema.Boolean:
			if c.bools[i] != o.bools[i] {
				return false
			}
		default:
			if c.strs[i] != o.strs[i] {
				return false
			}
		}
	}
	return true
}

// ColumnSlice is a read-only view of a contiguous row range of a Column
type ColumnSlice struct {
	col *Column
	off int
	n   int
}

// Column returns the column the slice views
func (s ColumnSlice) Column() *Column { return s.col }

// Offset returns the first viewed row of the column
func (s ColumnSlice) Offset() int { return s.off }

// Len returns the number of rows in the view
func (s ColumnSlice) Len() int { return s.n }

// Type returns the column type
func (s ColumnSlice) Type() schema.DataType { return s.col.typ }

// IsValid reports whether row i of the view holds a value
func (s ColumnSlice) IsValid(i int) bool { return s.col.validity.IsValid(s.off + i) }

// NullCount returns the number of null rows in the view
func (s ColumnSlice) NullCount() int { return s.col.validity.nullsIn(s.off, s.n) }

// Value returns row i of the view, or nil when null
func (s ColumnSlice) Value(i int) interface{} { return s.col.Value(s.off + i) }

// Int64s returns the viewed part of an Integer buffer
func (s ColumnSlice) Int64s() []int64 { return s.col.ints[s.off : s.off+s.n] }

// Float64s returns the viewed part of a Float buffer
func (s ColumnSlice) Float64s() []float64 { return s.col.floats[s.off : s.off+s.n] }

// Bools returns the viewed part of a Boolean buffer
func (s ColumnSlice) Bools() []bool { return s.col.bools[s.off : s.off+s.n] }

// Strings returns the viewed part of a String buffer
func (s ColumnSlice) Strings() []string { return s.col.strs[s.off : s.off+s.n] }

// AppendValidity appends the packed validity bits of the view to dst
func (s ColumnSlice) AppendValidity(dst []byte) []byte {
	return s.col.validity.AppendPacked(dst, s.off, s.n)
}
