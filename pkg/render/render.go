// Package render prints tables for humans and for line-oriented tools
package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	tjson "github.com/ajitpratap0/tabula/pkg/json"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// NullText is printed for null values in text output
const NullText = "null"

// TextOptions configures Text
type TextOptions struct {
	// MaxRows limits the printed rows (0 = all). A final line reports how
	// many were left out.
	MaxRows int
}

// Text writes t as aligned columns headed by name:type
func Text(w io.Writer, t *columnar.Table, opts TextOptions) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for i, c := range t.Columns() {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c.Field().String())
	}
	fmt.Fprintln(tw)

	rows := t.NumRows()
	if opts.MaxRows > 0 && rows > opts.MaxRows {
		rows = opts.MaxRows
	}
	for r := 0; r < rows; r++ {
		for i, c := range t.Columns() {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, FormatValue(c.Value(r)))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write table")
	}
	if rest := t.NumRows() - rows; rest > 0 {
		if _, err := fmt.Fprintf(w, "... %d more rows\n", rest); err != nil {
			return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write table")
		}
	}
	return nil
}

// FormatValue formats a column value for text output
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return NullText
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// JSONLines writes one JSON object per row keyed by column name. Non-finite
// floats are written as the strings "NaN", "+Inf" and "-Inf".
func JSONLines(w io.Writer, t *columnar.Table) error {
	enc := tjson.NewStreamingEncoder(w, false)
	cols := t.Columns()
	row := make(map[string]interface{}, len(cols))
	for r := 0; r < t.NumRows(); r++ {
		for _, c := range cols {
			v := c.Value(r)
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = FormatValue(nonFinite(f))
			}
			row[c.Name()] = v
		}
		if err := enc.Encode(row); err != nil {
			return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write JSON row").
				WithDetail("row", r+1)
		}
	}
	if err := enc.Close(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write JSON rows")
	}
	return nil
}

// nonFinite returns the display name of a NaN or infinite float
func nonFinite(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f > 0:
		return "+Inf"
	default:
		return "-Inf"
	}
}

// Schema writes one line per field: name, type and nullability
func Schema(w io.Writer, s schema.Schema) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "column\ttype\tnullable")
	for _, f := range s.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Name, f.Type, f.Nullable)
	}
	if err := tw.Flush(); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write schema")
	}
	return nil
}

// JSON writes v as indented JSON
func JSON(w io.Writer, v interface{}) error {
	data, err := tjson.MarshalIndent(v, "", "  ")
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeInternal, "failed to encode JSON")
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write JSON")
	}
	return nil
}
