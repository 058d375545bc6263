package colfile

import (
	"io"

	"github.com/ajitpratap0/tabula/pkg/schema"
)

// ColumnInfo describes one stored column
type ColumnInfo struct {
	Name     string          `json:"name"`
	Type     schema.DataType `json:"type"`
	Nullable bool            `json:"nullable"`
	IntWidth uint8           `json:"int_width,omitempty"`
}

// Info summarises a colfile without decoding its chunks
type Info struct {
	Version uint16       `json:"version"`
	Size    int64        `json:"size"`
	Columns []ColumnInfo `json:"columns"`
	Footer  *Footer      `json:"footer"`
}

// Inspect validates the file and returns its layout
func Inspect(r io.ReaderAt, size int64) (*Info, error) {
	rd, err := NewReader(r, size, ReaderOptions{})
	if err != nil {
		return nil, err
	}
	return rd.Info(), nil
}

// Info returns the layout of the open file
func (rd *Reader) Info() *Info {
	info := &Info{
		Version: rd.version,
		Size:    rd.size,
		Columns: make([]ColumnInfo, len(rd.layout)),
		Footer:  &rd.footer,
	}
	for i, c := range rd.layout {
		info.Columns[i] = ColumnInfo{Name: c.Name, Type: c.Type, Nullable: c.Nullable, IntWidth: c.IntWidth}
	}
	return info
}
