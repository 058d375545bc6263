package colfile

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// appendChunk appends the plain encoding of every column of ch to dst
func appendChunk(dst []byte, ch columnar.Chunk, layout []columnLayout) []byte {
	for i, c := range layout {
		s := ch.Column(i)

		start := len(dst)
		dst = append(dst, 0, 0, 0, 0)
		dst = s.AppendValidity(dst)
		binary.LittleEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))

		start = len(dst)
		dst = append(dst, 0, 0, 0, 0)
		dst = appendValues(dst, s, c.IntWidth)
		binary.LittleEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))
	}
	return dst
}

func appendValues(dst []byte, s columnar.ColumnSlice, width uint8) []byte {
	switch s.Type() {
	case schema.Integer:
		for _, v := range s.Int64s() {
			switch width {
			case 1:
				dst = append(dst, byte(int8(v)))
			case 2:
				dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(v)))
			case 4:
				dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(v)))
			default:
				dst = binary.LittleEndian.AppendUint64(dst, uint64(v))
			}
		}
	case schema.Float:
		for _, v := range s.Float64s() {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
		}
	case schema.Boolean:
		vals := s.Bools()
		start := len(dst)
		dst = append(dst, make([]byte, (len(vals)+7)/8)...)
		for i, v := range vals {
			if v {
				dst[start+i/8] |= 1 << (uint(i) % 8)
			}
		}
	default:
		for _, v := range s.Strings() {
			dst = binary.AppendUvarint(dst, uint64(len(v)))
			dst = append(dst, v...)
		}
	}
	return dst
}

// decodeChunk rebuilds a table of rows rows from one chunk's bytes
func decodeChunk(b []byte, rows int, layout []columnLayout) (*columnar.Table, error) {
	d := newDecoder(b, tabulaerrors.ErrorTypeCorruptChunk)
	packed := (rows + 7) / 8
	columns := make([]*columnar.Column, len(layout))

	for i, c := range layout {
		if n := d.uint32(); d.err == nil && int(n) != packed {
			d.fail("column %q validity is %d bytes, want %d", c.Name, n, packed)
		}
		validity := columnar.ValidityFromBytes(d.bytes(packed), rows)
		if d.err != nil {
			return nil, d.err
		}
		if !c.Nullable && validity.NullCount() > 0 {
			d.fail("column %q is not nullable but holds %d nulls", c.Name, validity.NullCount())
			return nil, d.err
		}

		values := d.bytes(int(d.uint32()))
		if d.err != nil {
			return nil, d.err
		}
		col, err := decodeValues(values, rows, c, validity)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}
	if d.remaining() != 0 {
		d.fail("chunk has %d trailing bytes", d.remaining())
		return nil, d.err
	}
	table, err := columnar.NewTable(columns...)
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeCorruptChunk, "chunk columns are inconsistent")
	}
	return table, nil
}

func decodeValues(values []byte, rows int, c columnLayout, validity *columnar.Validity) (*columnar.Column, error) {
	d := newDecoder(values, tabulaerrors.ErrorTypeCorruptChunk)
	want := -1
	switch c.Type {
	case schema.Integer:
		want = rows * int(c.IntWidth)
	case schema.Float:
		want = rows * 8
	case schema.Boolean:
		want = (rows + 7) / 8
	}
	if want >= 0 && len(values) != want {
		d.fail("column %q values are %d bytes, want %d", c.Name, len(values), want)
		return nil, d.err
	}

	b := columnar.NewBuilder(c.Name, c.Type, rows)
	for i := 0; i < rows; i++ {
		switch c.Type {
		case schema.Integer:
			var v int64
			switch c.IntWidth {
			case 1:
				v = int64(int8(d.uint8()))
			case 2:
				v = int64(int16(d.uint16()))
			case 4:
				v = int64(int32(d.uint32()))
			default:
				v = int64(d.uint64())
			}
			if validity.IsValid(i) {
				b.AppendInt64(v)
				continue
			}
		case schema.Float:
			v := math.Float64frombits(d.uint64())
			if validity.IsValid(i) {
				b.AppendFloat64(v)
				continue
			}
		case schema.Boolean:
			v := values[i/8]&(1<<(uint(i)%8)) != 0
			if validity.IsValid(i) {
				b.AppendBool(v)
				continue
			}
		default:
			v := string(d.bytes(int(d.uvarint())))
			if d.err != nil {
				return nil, d.err
			}
			if validity.IsValid(i) {
				b.AppendString(v)
				continue
			}
		}
		b.AppendNull()
	}
	if c.Type == schema.String && d.remaining() != 0 {
		d.fail("column %q has %d trailing value bytes", c.Name, d.remaining())
	}
	if d.err != nil {
		return nil, d.err
	}
	return b.Build(), nil
}
