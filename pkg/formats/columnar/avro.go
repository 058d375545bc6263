package columnar

import (
	"context"
	"io"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	jsonpool "github.com/ajitpratap0/tabula/pkg/json"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// avroField keeps the original column name in tabula.column when it is not
// a valid Avro name
type avroField struct {
	Name   string      `json:"name"`
	Type   interface{} `json:"type"`
	Column string      `json:"tabula.column,omitempty"`
}

type avroRecord struct {
	Type      string      `json:"type"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace,omitempty"`
	Fields    []avroField `json:"fields"`
}

func avroCompression(name string) (string, error) {
	switch name {
	case "", "snappy":
		return goavro.CompressionSnappyLabel, nil
	case "none":
		return goavro.CompressionNullLabel, nil
	case "deflate":
		return goavro.CompressionDeflateLabel, nil
	}
	return "", unknownCompression(Avro, name)
}

func avroType(t schema.DataType) string {
	switch t {
	case schema.Integer:
		return "long"
	case schema.Float:
		return "double"
	case schema.Boolean:
		return "boolean"
	default:
		return "string"
	}
}

func fromAvroType(name string) (schema.DataType, bool) {
	switch name {
	case "int", "long":
		return schema.Integer, true
	case "float", "double":
		return schema.Float, true
	case "boolean":
		return schema.Boolean, true
	case "string":
		return schema.String, true
	}
	return 0, false
}

// avroName rewrites name into [A-Za-z_][A-Za-z0-9_]*
func avroName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
		default:
			r = '_'
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// avroSchema builds the record schema for s. Nullable columns become
// unions with null.
func avroSchema(s schema.Schema) (avroRecord, error) {
	rec := avroRecord{Type: "record", Name: "Row", Namespace: "tabula", Fields: make([]avroField, len(s.Fields))}
	seen := make(map[string]string, len(s.Fields))
	for i, f := range s.Fields {
		name := avroName(f.Name)
		if prev, ok := seen[name]; ok {
			return rec, tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation,
				"columns %q and %q both map to avro field %q", prev, f.Name, name).
				WithDetail("column", f.Name)
		}
		seen[name] = f.Name
		field := avroField{Name: name, Type: avroType(f.Type)}
		if f.Nullable {
			field.Type = []interface{}{"null", avroType(f.Type)}
		}
		if name != f.Name {
			field.Column = f.Name
		}
		rec.Fields[i] = field
	}
	return rec, nil
}

func writeAvro(ctx context.Context, w io.Writer, t *columnar.Table, opts WriterOptions) error {
	compression, err := avroCompression(opts.Compression)
	if err != nil {
		return err
	}
	s := t.Schema()
	rec, err := avroSchema(s)
	if err != nil {
		return err
	}
	def, err := jsonpool.Marshal(rec)
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeInternal, "failed to encode avro schema")
	}
	codec, err := goavro.NewCodec(string(def))
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeInternal, "failed to create avro codec")
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: compression,
	})
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to create avro writer")
	}

	return each(ctx, t, opts.BatchSize, func(ch columnar.Chunk) error {
		block := make([]interface{}, ch.Rows)
		for r := range block {
			datum := make(map[string]interface{}, len(rec.Fields))
			for i, f := range rec.Fields {
				v := t.Column(i).Value(ch.Offset + r)
				if v != nil && s.Fields[i].Nullable {
					v = goavro.Union(avroType(s.Fields[i].Type), v)
				}
				datum[f.Name] = v
			}
			block[r] = datum
		}
		if err := ocf.Append(block); err != nil {
			return tabulaerrors.Wrapf(err, tabulaerrors.ErrorTypeIO, "failed to write avro block %d", ch.Index)
		}
		return nil
	})
}

// avroFieldType returns the primitive type of an Avro field type and
// whether it is a union with null
func avroFieldType(t interface{}) (string, bool) {
	switch v := t.(type) {
	case string:
		return v, false
	case map[string]interface{}:
		name, _ := v["type"].(string)
		return name, false
	case []interface{}:
		var name string
		nullable := false
		for _, branch := range v {
			b, _ := avroFieldType(branch)
			if b == "null" {
				nullable = true
				continue
			}
			if name != "" {
				return "", nullable
			}
			name = b
		}
		return name, nullable
	}
	return "", false
}

func readAvro(ctx context.Context, r *io.SectionReader, _ ReaderOptions) (*columnar.Table, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, invalid(err, Avro, "cannot open file")
	}
	var rec avroRecord
	if err := jsonpool.Unmarshal([]byte(ocf.Codec().Schema()), &rec); err != nil || rec.Type != "record" {
		return nil, tabulaerrors.New(tabulaerrors.ErrorTypeSchemaMismatch, "avro: top-level schema must be a record")
	}

	builders := make([]*columnar.Builder, len(rec.Fields))
	for i, f := range rec.Fields {
		name, _ := avroFieldType(f.Type)
		typ, ok := fromAvroType(name)
		if !ok {
			return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeSchemaMismatch,
				"avro: field %q has unsupported type %v", f.Name, f.Type).
				WithDetail("column", f.Name)
		}
		column := f.Name
		if f.Column != "" {
			column = f.Column
		}
		builders[i] = columnar.NewBuilder(column, typ, 0)
	}

	for ocf.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, tabulaerrors.FromContext(err, "import canceled")
		}
		datum, err := ocf.Read()
		if err != nil {
			return nil, invalid(err, Avro, "cannot read record")
		}
		row, ok := datum.(map[string]interface{})
		if !ok {
			return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeInvalidFormat, "avro: record decoded as %T", datum)
		}
		for i, f := range rec.Fields {
			if err := appendAvroValue(builders[i], row[f.Name]); err != nil {
				return nil, err
			}
		}
	}
	if err := ocf.Err(); err != nil {
		return nil, invalid(err, Avro, "cannot read block")
	}

	cols := make([]*columnar.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Build()
	}
	return columnar.NewTable(cols...)
}

func appendAvroValue(b *columnar.Builder, v interface{}) error {
	if u, ok := v.(map[string]interface{}); ok {
		for _, inner := range u {
			v = inner
		}
	}
	switch x := v.(type) {
	case int32:
		v = int64(x)
	case float32:
		v = float64(x)
	}
	return b.Append(v)
}
