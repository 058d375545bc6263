// Package schema defines the scalar type lattice, table schemas, and the
// type inference used to turn raw delimited fields into typed columns.
package schema

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// DataType is the closed set of scalar column types. The numeric order is
// the lattice order: Integer < Float < Boolean < String.
type DataType uint8

const (
	// Integer is a signed 64-bit integer
	Integer DataType = iota + 1
	// Float is an IEEE-754 double
	Float
	// Boolean is true or false
	Boolean
	// String is UTF-8 text, the universal fallback
	String
)

// String returns the lowercase type name
func (t DataType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the four lattice types
func (t DataType) Valid() bool {
	return t >= Integer && t <= String
}

// Less reports whether t is strictly narrower than other
func (t DataType) Less(other DataType) bool {
	return t < other
}

// MarshalText implements encoding.TextMarshaler
func (t DataType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid data type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Widen returns the wider of two types
func Widen(a, b DataType) DataType {
	if a > b {
		return a
	}
	return b
}

// ParseDataType parses a type name. Common aliases are accepted.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "integer", "int", "int64", "long":
		return Integer, nil
	case "float", "float64", "double", "real":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	case "string", "str", "utf8", "text":
		return String, nil
	default:
		return 0, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "unknown data type %q", name)
	}
}

// Field describes one column
type Field struct {
	Name     string   `json:"name" yaml:"name"`
	Type     DataType `json:"type" yaml:"type"`
	Nullable bool     `json:"nullable" yaml:"nullable"`
}

// String renders the field as name:type, with a trailing ? when nullable
func (f Field) String() string {
	if f.Nullable {
		return f.Name + ":" + f.Type.String() + "?"
	}
	return f.Name + ":" + f.Type.String()
}

// Schema is the ordered list of fields of a table
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// New creates a schema from fields
func New(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// Len returns the number of fields
func (s Schema) Len() int {
	return len(s.Fields)
}

// Names returns the field names in order
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the field with the given name
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Equal reports whether both schemas have the same fields in the same order
func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// String renders the schema as {name:type, ...}
func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Compatible checks a stored schema s against an expected schema. Names,
// order and types must match exactly. A stored nullable column only
// conflicts when the expected field is declared non-nullable.
//
// Returns a schema_mismatch error describing the first difference.
func (s Schema) Compatible(expected Schema) error {
	if len(s.Fields) != len(expected.Fields) {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
			"expected %d columns, found %d", len(expected.Fields), len(s.Fields)).
			WithDetail("expected", expected.String()).
			WithDetail("stored", s.String())
	}
	for i, want := range expected.Fields {
		got := s.Fields[i]
		switch {
		case got.Name != want.Name:
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
				"column %d is %q, expected %q", i, got.Name, want.Name).
				WithDetail("column", want.Name)
		case got.Type != want.Type:
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
				"column %q has type %s, expected %s", got.Name, got.Type, want.Type).
				WithDetail("column", got.Name).
				WithDetail("stored_type", got.Type.String()).
				WithDetail("expected_type", want.Type.String())
		case got.Nullable && !want.Nullable:
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
				"column %q contains nulls but is expected to be non-nullable", got.Name).
				WithDetail("column", got.Name)
		}
	}
	return nil
}

// Parse reads a schema from "name:type" pairs separated by commas, such as
// "id:int,score:float?". A trailing ? marks the field nullable; fields
// without it are non-nullable.
func Parse(def string) (Schema, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return Schema{}, tabulaerrors.New(tabulaerrors.ErrorTypeValidation, "empty schema definition")
	}

	var fields []Field
	seen := make(map[string]struct{})
	for _, part := range strings.Split(def, ",") {
		name, typeName, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" {
			return Schema{}, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
				"invalid schema field %q, want name:type", part)
		}
		if _, dup := seen[name]; dup {
			return Schema{}, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "duplicate field %q", name)
		}
		seen[name] = struct{}{}

		nullable := strings.HasSuffix(typeName, "?")
		typ, err := ParseDataType(strings.TrimSuffix(typeName, "?"))
		if err != nil {
			return Schema{}, err
		}
		fields = append(fields, Field{Name: name, Type: typ, Nullable: nullable})
	}
	return Schema{Fields: fields}, nil
}
