package csv

import (
	"bufio"
	"io"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Writer writes records in a dialect that Reader reads back unchanged
type Writer struct {
	d Dialect
	w *bufio.Writer
}

// NewWriter creates a writer over w using dialect d
func NewWriter(w io.Writer, d Dialect) (*Writer, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Writer{d: d, w: bufio.NewWriterSize(w, 64*1024)}, nil
}

// Write writes one record
func (w *Writer) Write(fields []string) error {
	if len(fields) == 1 && fields[0] == "" {
		// an empty line would be skipped on read
		return w.writeRaw([]byte{w.d.Quote, w.d.Quote, w.d.RecordDelimiter})
	}
	for i, f := range fields {
		if i > 0 {
			if err := w.w.WriteByte(w.d.Delimiter); err != nil {
				return writeError(err)
			}
		}
		if err := w.writeField(f); err != nil {
			return err
		}
	}
	if err := w.w.WriteByte(w.d.RecordDelimiter); err != nil {
		return writeError(err)
	}
	return nil
}

func (w *Writer) writeRaw(b []byte) error {
	_, err := w.w.Write(b)
	return writeError(err)
}

func (w *Writer) writeField(f string) error {
	if !w.needsQuotes(f) {
		_, err := w.w.WriteString(f)
		return writeError(err)
	}

	if err := w.w.WriteByte(w.d.Quote); err != nil {
		return writeError(err)
	}
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c == w.d.Quote || (w.d.Escape != w.d.Quote && c == w.d.Escape) {
			if err := w.w.WriteByte(w.d.Escape); err != nil {
				return writeError(err)
			}
		}
		if err := w.w.WriteByte(c); err != nil {
			return writeError(err)
		}
	}
	return writeError(w.w.WriteByte(w.d.Quote))
}

func (w *Writer) needsQuotes(f string) bool {
	if f == "" {
		return false
	}
	if w.d.TrimSpace && (isSpace(f[0]) || isSpace(f[len(f)-1])) {
		return true
	}
	for i := 0; i < len(f); i++ {
		switch f[i] {
		case w.d.Delimiter, w.d.Quote, w.d.Escape, w.d.RecordDelimiter, '\r', '\n':
			return true
		}
	}
	return false
}

// Flush writes buffered data to the underlying writer
func (w *Writer) Flush() error {
	return writeError(w.w.Flush())
}

func writeError(err error) error {
	if err == nil {
		return nil
	}
	return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write output")
}
