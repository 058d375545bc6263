// Package csv splits delimited text into records and fields.
//
// Unlike encoding/csv, the quote, escape and record delimiter bytes are
// configurable through a Dialect, and field-count enforcement reports
// structured malformed_record errors carrying the record number and line.
//
// # Quoting
//
// A field that starts with the quote byte is quoted. Inside a quoted field
// the delimiter and the record delimiter are literal. When the escape byte
// equals the quote byte a doubled quote is a literal quote, so
//
//	"a,b""c"
//
// reads as the single value a,b"c. With a distinct escape byte (for
// example a backslash) the escape makes the following byte literal, inside
// or outside quotes.
//
// # Records
//
// Empty lines are skipped and a trailing record delimiter does not produce
// an extra record. When the record delimiter is '\n', a preceding '\r' is
// dropped so CRLF input reads the same as LF input.
package csv

import (
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Dialect describes the syntax of the delimited text
type Dialect struct {
	Delimiter         byte
	Quote             byte
	Escape            byte
	RecordDelimiter   byte
	Header            bool
	EnforceFieldCount bool
	TrimSpace         bool
}

// DefaultDialect returns RFC 4180 style comma-separated values with a header
func DefaultDialect() Dialect {
	return Dialect{
		Delimiter:         ',',
		Quote:             '"',
		Escape:            '"',
		RecordDelimiter:   '\n',
		Header:            true,
		EnforceFieldCount: true,
	}
}

// Validate checks the special bytes are usable together
func (d Dialect) Validate() error {
	if d.Delimiter == 0 || d.Quote == 0 || d.Escape == 0 || d.RecordDelimiter == 0 {
		return tabulaerrors.New(tabulaerrors.ErrorTypeConfig, "delimiter, quote, escape and record delimiter must be set")
	}
	if d.Delimiter == d.Quote || d.Delimiter == d.RecordDelimiter || d.Quote == d.RecordDelimiter {
		return tabulaerrors.New(tabulaerrors.ErrorTypeConfig, "delimiter, quote and record delimiter must differ").
			WithDetail("delimiter", string(d.Delimiter)).
			WithDetail("quote", string(d.Quote))
	}
	if d.Escape == d.Delimiter || d.Escape == d.RecordDelimiter {
		return tabulaerrors.New(tabulaerrors.ErrorTypeConfig, "escape must differ from the delimiters")
	}
	for _, b := range []byte{d.Delimiter, d.Quote, d.Escape} {
		if b == '\r' || b == '\n' {
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeConfig, "%q cannot be used as delimiter, quote or escape", b)
		}
	}
	return nil
}
