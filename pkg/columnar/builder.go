package columnar

import (
	"fmt"

	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Builder accumulates the values of one column. The type is committed at
// construction; raw values that do not parse under it are rejected.
type Builder struct {
	name     string
	typ      schema.DataType
	nulls    schema.NullSet
	bools    schema.BoolTokens
	ints     []int64
	floats   []float64
	boolVals []bool
	strs     []string
	validity *Validity
}

// NewBuilder creates a builder for a column of type typ. Raw values are
// parsed with the default null set and boolean tokens unless WithParsing
// is called.
func NewBuilder(name string, typ schema.DataType, capacity int) *Builder {
	if capacity < 0 {
		capacity = 0
	}
	b := &Builder{
		name:     name,
		typ:      typ,
		nulls:    schema.NewNullSet(),
		bools:    schema.NewBoolTokens(nil, nil),
		validity: newValidity(capacity),
	}
	switch typ {
	case schema.Integer:
		b.ints = make([]int64, 0, capacity)
	case schema.Float:
		b.floats = make([]float64, 0, capacity)
	case schema.Boolean:
		b.boolVals = make([]bool, 0, capacity)
	default:
		b.typ = schema.String
		b.strs = make([]string, 0, capacity)
	}
	return b
}

// WithParsing sets the null set and boolean tokens used by AppendRaw
func (b *Builder) WithParsing(nulls schema.NullSet, bools schema.BoolTokens) *Builder {
	if nulls != nil {
		b.nulls = nulls
	}
	if !bools.IsZero() {
		b.bools = bools
	}
	return b
}

// Len returns the number of rows appended so far
func (b *Builder) Len() int {
	return b.validity.Len()
}

// Type returns the committed type
func (b *Builder) Type() schema.DataType {
	return b.typ
}

// AppendRaw parses raw under the committed type. Null tokens append a null.
// A value that does not parse returns a type_conversion error carrying the
// row (1-based), column, raw value and target type; nothing is appended.
func (b *Builder) AppendRaw(raw string) error {
	if b.nulls.IsNull(raw) {
		b.AppendNull()
		return nil
	}
	switch b.typ {
	case schema.Integer:
		v, ok := schema.ParseInteger(raw)
		if !ok {
			return b.conversionError(raw)
		}
		b.AppendInt64(v)
	case schema.Float:
		v, ok := schema.ParseFloat(raw)
		if !ok {
			return b.conversionError(raw)
		}
		b.AppendFloat64(v)
	case schema.Boolean:
		v, ok := b.bools.Parse(raw)
		if !ok {
			return b.conversionError(raw)
		}
		b.AppendBool(v)
	default:
		b.AppendString(raw)
	}
	return nil
}

func (b *Builder) conversionError(raw string) error {
	return NewTypeConversionError(b.Len()+1, b.name, raw, b.typ)
}

// NewTypeConversionError creates the error returned when raw cannot be
// parsed as target at the given 1-based row of column
func NewTypeConversionError(row int, column, raw string, target schema.DataType) error {
	return tabulaerrors.Newf(tabulaerrors.ErrorTypeTypeConversion,
		"cannot convert %q to %s in column %q at row %d", raw, target, column, row).
		WithDetail("row", row).
		WithDetail("column", column).
		WithDetail("raw_value", raw).
		WithDetail("target_type", target.String())
}

// AppendNull appends a null with the type's zero value in the slot
func (b *Builder) AppendNull() {
	switch b.typ {
	case schema.Integer:
		b.ints = append(b.ints, 0)
	case schema.Float:
		b.floats = append(b.floats, 0)
	case schema.Boolean:
		b.boolVals = append(b.boolVals, false)
	default:
		b.strs = append(b.strs, "")
	}
	b.validity.append(false)
}

// AppendInt64 appends a value to an Integer builder. It panics on other types.
func (b *Builder) AppendInt64(v int64) {
	b.mustBe(schema.Integer)
	b.ints = append(b.ints, v)
	b.validity.append(true)
}

// AppendFloat64 appends a value to a Float builder. It panics on other types.
func (b *Builder) AppendFloat64(v float64) {
	b.mustBe(schema.Float)
	b.floats = append(b.floats, v)
	b.validity.append(true)
}

// AppendBool appends a value to a Boolean builder. It panics on other types.
func (b *Builder) AppendBool(v bool) {
	b.mustBe(schema.Boolean)
	b.boolVals = append(b.boolVals, v)
	b.validity.append(true)
}

// AppendString appends a value to a String builder. It panics on other types.
func (b *Builder) AppendString(v string) {
	b.mustBe(schema.String)
	b.strs = append(b.strs, v)
	b.validity.append(true)
}

// Append appends a Go value: nil is null, and int, int64, float64, bool or
// string must match the committed type.
func (b *Builder) Append(value interface{}) error {
	if value == nil {
		b.AppendNull()
		return nil
	}
	switch v := value.(type) {
	case int:
		if b.typ == schema.Integer {
			b.AppendInt64(int64(v))
			return nil
		}
	case int64:
		if b.typ == schema.Integer {
			b.AppendInt64(v)
			return nil
		}
	case float64:
		if b.typ == schema.Float {
			b.AppendFloat64(v)
			return nil
		}
	case bool:
		if b.typ == schema.Boolean {
			b.AppendBool(v)
			return nil
		}
	case string:
		if b.typ == schema.String {
			b.AppendString(v)
			return nil
		}
	}
	return tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
		"cannot append %T to %s column %q", value, b.typ, b.name)
}

// AppendSlice appends every row of a view of a column with the same type
func (b *Builder) AppendSlice(s ColumnSlice) error {
	if s.Type() != b.typ {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
			"cannot append %s rows to %s column %q", s.Type(), b.typ, b.name)
	}
	switch b.typ {
	case schema.Integer:
		b.ints = append(b.ints, s.Int64s()...)
	case schema.Float:
		b.floats = append(b.floats, s.Float64s()...)
	case schema.Boolean:
		b.boolVals = append(b.boolVals, s.Bools()...)
	default:
		b.strs = append(b.strs, s.Strings()...)
	}
	for i := 0; i < s.Len(); i++ {
		b.validity.append(s.IsValid(i))
	}
	return nil
}

func (b *Builder) mustBe(t schema.DataType) {
	if b.typ != t {
		panic(fmt.Sprintf("columnar: %s append on %s column %q", t, b.typ, b.name))
	}
}

// Build returns the finished column. The builder must not be used afterwards.
func (b *Builder) Build() *Column {
	c := &Column{
		name:     b.name,
		typ:      b.typ,
		rows:     b.validity.Len(),
		ints:     b.ints,
		floats:   b.floats,
		bools:    b.boolVals,
		strs:     b.strs,
		validity: b.validity,
	}
	*b = Builder{name: b.name, typ: b.typ}
	return c
}

// BuildColumn parses raw values into a column of type typ
func BuildColumn(name string, typ schema.DataType, raw []string, nulls schema.NullSet, bools schema.BoolTokens) (*Column, error) {
	b := NewBuilder(name, typ, len(raw)).WithParsing(nulls, bools)
	for _, v := range raw {
		if err := b.AppendRaw(v); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// FromValues builds a column from Go values, nil meaning null
func FromValues(name string, typ schema.DataType, values ...interface{}) (*Column, error) {
	b := NewBuilder(name, typ, len(values))
	for _, v := range values {
		if err := b.Append(v); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
