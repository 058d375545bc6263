package csv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Record is one row of raw fields
type Record struct {
	// Number is the 1-based index of the record among data records
	Number int
	// Line is the 1-based line the record starts on
	Line   int
	Fields []string
}

// Reader reads records from delimited text. It is not safe for concurrent use.
type Reader struct {
	d     Dialect
	r     *bufio.Reader
	line  int
	count int

	header   []string
	started  bool
	width    int
	pending  *Record
	field    bytes.Buffer
	trimming bool
}

// NewReader creates a reader over r using dialect d
func NewReader(r io.Reader, d Dialect) (*Reader, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	rd := &Reader{d: d}
	rd.Reset(r)
	return rd, nil
}

// Reset restarts the reader on a new stream with the same dialect
func (r *Reader) Reset(src io.Reader) {
	if br, ok := src.(*bufio.Reader); ok {
		r.r = br
	} else {
		r.r = bufio.NewReaderSize(src, 64*1024)
	}
	r.line = 1
	r.count = 0
	r.header = nil
	r.started = false
	r.width = -1
	r.pending = nil
	r.field.Reset()
}

// Dialect returns the dialect in use
func (r *Reader) Dialect() Dialect {
	return r.d
}

// Header returns the column names. With Dialect.Header the first record is
// the header. Otherwise names are f0, f1, ... sized by the first record.
// An input with no records yields no names.
func (r *Reader) Header() ([]string, error) {
	if err := r.start(); err != nil {
		return nil, err
	}
	return r.header, nil
}

func (r *Reader) start() error {
	if r.started {
		return nil
	}
	r.started = true

	fields, line, err := r.readRecord()
	if err == io.EOF {
		r.width = 0
		return nil
	}
	if err != nil {
		return err
	}

	if !r.d.Header {
		r.header = make([]string, len(fields))
		for i := range fields {
			r.header[i] = "f" + strconv.Itoa(i)
		}
		r.width = len(fields)
		r.count++
		r.pending = &Record{Number: r.count, Line: line, Fields: fields}
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	for i, name := range fields {
		if name == "" {
			name = "f" + strconv.Itoa(i)
			fields[i] = name
		}
		if _, dup := seen[name]; dup {
			return tabulaerrors.Newf(tabulaerrors.ErrorTypeMalformedRecord, "duplicate column name %q in header", name).
				WithDetail("line", line).
				WithDetail("column", name)
		}
		seen[name] = struct{}{}
	}
	r.header = fields
	r.width = len(fields)
	return nil
}

// Next returns the next data record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	if err := r.start(); err != nil {
		return Record{}, err
	}
	if r.pending != nil {
		rec := *r.pending
		r.pending = nil
		return rec, nil
	}

	fields, line, err := r.readRecord()
	if err != nil {
		return Record{}, err
	}
	r.count++

	if len(fields) != r.width {
		if len(fields) > r.width || r.d.EnforceFieldCount {
			return Record{}, r.fieldCountError(line, len(fields))
		}
		for len(fields) < r.width {
			fields = append(fields, "")
		}
	}
	return Record{Number: r.count, Line: line, Fields: fields}, nil
}

// ReadAll reads every remaining record
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func (r *Reader) fieldCountError(line, got int) error {
	return tabulaerrors.Newf(tabulaerrors.ErrorTypeMalformedRecord,
		"record has %d fields, expected %d", got, r.width).
		WithDetail("record", r.count).
		WithDetail("line", line).
		WithDetail("expected", r.width).
		WithDetail("got", got)
}

// readRecord returns the fields of the next non-empty record and the line it
// started on
func (r *Reader) readRecord() ([]string, int, error) {
	for {
		fields, line, err := r.scanRecord()
		if err != nil {
			return nil, line, err
		}
		if fields != nil {
			return fields, line, nil
		}
	}
}

// scanRecord scans one record. It returns nil fields for an empty line.
func (r *Reader) scanRecord() ([]string, int, error) {
	start := r.line
	capacity := r.width
	if capacity <= 0 {
		capacity = 8
	}
	fields := make([]string, 0, capacity)

	r.field.Reset()
	r.trimming = r.d.TrimSpace
	inQuotes := false
	quoted := false
	afterQuote := false
	sawAny := false
	splitEscape := r.d.Escape != r.d.Quote

	for {
		c, err := r.readByte()
		if err == io.EOF {
			if inQuotes {
				return nil, start, r.malformed(start, "unterminated quoted field at end of input")
			}
			if !sawAny {
				return nil, start, io.EOF
			}
			fields = append(fields, r.takeField(quoted))
			if isEmptyRecord(fields, quoted) {
				return nil, start, io.EOF
			}
			return fields, start, nil
		}
		if err != nil {
			return nil, start, err
		}
		sawAny = true

		switch {
		case inQuotes:
			switch {
			case splitEscape && c == r.d.Escape:
				next, err := r.readByte()
				if err == io.EOF {
					return nil, start, r.malformed(start, "unterminated quoted field at end of input")
				}
				if err != nil {
					return nil, start, err
				}
				r.field.WriteByte(next)
			case c == r.d.Quote:
				if !splitEscape {
					next, err := r.r.Peek(1)
					if err == nil && next[0] == r.d.Quote {
						r.r.ReadByte()
						r.field.WriteByte(c)
						continue
					}
				}
				inQuotes = false
				afterQuote = true
			default:
				r.field.WriteByte(c)
			}

		case c == r.d.Delimiter:
			fields = append(fields, r.takeField(quoted))
			quoted = false
			afterQuote = false
			r.trimming = r.d.TrimSpace

		case c == r.d.RecordDelimiter:
			fields = append(fields, r.takeField(quoted))
			if isEmptyRecord(fields, quoted) {
				return nil, start, nil
			}
			return fields, start, nil

		case afterQuote:
			if (c == '\r' && r.d.RecordDelimiter == '\n') || (r.d.TrimSpace && isSpace(c)) {
				continue
			}
			return nil, start, r.malformed(start, "unexpected "+strconv.QuoteRune(rune(c))+" after closing quote")

		case r.trimming && isSpace(c):
			// leading space of a trimmed field

		case c == r.d.Quote && r.field.Len() == 0:
			inQuotes = true
			quoted = true
			r.trimming = false

		case splitEscape && c == r.d.Escape:
			next, err := r.readByte()
			if err == io.EOF {
				return nil, start, r.malformed(start, "escape character at end of input")
			}
			if err != nil {
				return nil, start, err
			}
			r.field.WriteByte(next)
			r.trimming = false

		default:
			r.field.WriteByte(c)
			r.trimming = false
		}
	}
}

// takeField returns the buffered field and clears the buffer
func (r *Reader) takeField(quoted bool) string {
	b := r.field.Bytes()
	if !quoted {
		if r.d.RecordDelimiter == '\n' && len(b) > 0 && b[len(b)-1] == '\r' {
			b = b[:len(b)-1]
		}
		if r.d.TrimSpace {
			b = bytes.TrimRight(b, " \t")
		}
	}
	s := string(b)
	r.field.Reset()
	return s
}

func (r *Reader) readByte() (byte, error) {
	c, err := r.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, readError(err)
	}
	if c == '\n' {
		r.line++
	}
	return c, nil
}

func (r *Reader) malformed(line int, msg string) error {
	return tabulaerrors.New(tabulaerrors.ErrorTypeMalformedRecord, msg).
		WithDetail("record", r.count+1).
		WithDetail("line", line)
}

func readError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeTimeout, "read stalled")
	}
	if errors.Is(err, context.Canceled) {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeCanceled, "read canceled")
	}
	var te *tabulaerrors.Error
	if errors.As(err, &te) {
		return err
	}
	return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to read input")
}

func isEmptyRecord(fields []string, quoted bool) bool {
	return len(fields) == 1 && fields[0] == "" && !quoted
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
