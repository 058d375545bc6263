// Package colfile implements the tabula columnar file format.
//
// A colfile is a header, a checksummed schema block, a sequence of
// independently decodable chunks and a footer indexing them:
//
//	header       "TBLC" | version uint16 | flags uint16
//	schema_block uint32 len | payload | uint32 crc32c
//	chunk_block  per column: uint32 len | validity | uint32 len | values
//	footer_block uint32 chunks | uint64 rows | chunk metas | uint32 crc32c
//	trailer      uint32 footer_len | "TBLC"
//
// All integers are little-endian. Checksums are CRC-32C (Castagnoli).
// Integer columns are stored at the narrowest of 1, 2, 4 or 8 bytes that
// holds every value of the column.
package colfile

import (
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

const (
	// Magic opens and closes every colfile
	Magic = "TBLC"
	// Version is the only format version this package reads and writes
	Version uint16 = 1

	headerSize  = 8
	trailerSize = 8
	// chunk_count + total_rows + crc
	footerFixedSize = 4 + 8 + 4
	// offset + length + row_count + crc, followed by one byte per column
	chunkMetaFixedSize = 8 + 8 + 4 + 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}

// IsColfile reports whether header starts with the colfile magic
func IsColfile(header []byte) bool {
	return len(header) >= len(Magic) && string(header[:len(Magic)]) == Magic
}

// Encoding identifies how a column is laid out inside a chunk
type Encoding uint8

// Plain is the only encoding. Readers reject any other tag.
const Plain Encoding = 0

// String returns the encoding name
func (e Encoding) String() string {
	if e == Plain {
		return "plain"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ChunkMeta locates and checks one chunk
type ChunkMeta struct {
	Offset    uint64     `json:"offset"`
	Length    uint64     `json:"length"`
	Rows      uint32     `json:"rows"`
	Checksum  uint32     `json:"checksum"`
	Encodings []Encoding `json:"encodings"`
}

func (m ChunkMeta) appendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, m.Offset)
	dst = binary.LittleEndian.AppendUint64(dst, m.Length)
	dst = binary.LittleEndian.AppendUint32(dst, m.Rows)
	dst = binary.LittleEndian.AppendUint32(dst, m.Checksum)
	for _, e := range m.Encodings {
		dst = append(dst, byte(e))
	}
	return dst
}

func (m *ChunkMeta) parse(d *decoder, ncols int) {
	m.Offset = d.uint64()
	m.Length = d.uint64()
	m.Rows = d.uint32()
	m.Checksum = d.uint32()
	raw := d.bytes(ncols)
	m.Encodings = make([]Encoding, len(raw))
	for i, b := range raw {
		m.Encodings[i] = Encoding(b)
	}
}

// Footer indexes the chunks of a file
type Footer struct {
	TotalRows uint64      `json:"total_rows"`
	Chunks    []ChunkMeta `json:"chunks"`
}

// NumChunks returns the number of chunks
func (f *Footer) NumChunks() int { return len(f.Chunks) }

func (f *Footer) appendTo(dst []byte) []byte {
	start := len(dst)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Chunks)))
	dst = binary.LittleEndian.AppendUint64(dst, f.TotalRows)
	for _, m := range f.Chunks {
		dst = m.appendTo(dst)
	}
	return binary.LittleEndian.AppendUint32(dst, checksum(dst[start:]))
}

// parse decodes a footer whose checksum has already been verified
func (f *Footer) parse(b []byte, ncols int) error {
	d := newDecoder(b, tabulaerrors.ErrorTypeCorruptFooter)
	count := d.uint32()
	f.TotalRows = d.uint64()
	if d.err == nil && uint64(count)*uint64(chunkMetaFixedSize+ncols) != uint64(len(b)-footerFixedSize) {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter,
			"footer of %d bytes cannot hold %d chunks", len(b), count)
	}
	f.Chunks = make([]ChunkMeta, 0, count)
	var rows uint64
	for i := uint32(0); i < count && d.err == nil; i++ {
		var m ChunkMeta
		m.parse(d, ncols)
		rows += uint64(m.Rows)
		f.Chunks = append(f.Chunks, m)
	}
	if d.err != nil {
		return d.err
	}
	if rows != f.TotalRows {
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeCorruptFooter,
			"chunks hold %d rows, footer records %d", rows, f.TotalRows)
	}
	return nil
}

// columnLayout is the stored description of one column
type columnLayout struct {
	Name     string
	Type     schema.DataType
	Nullable bool
	IntWidth uint8
}

func (c columnLayout) appendTo(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(c.Name)))
	dst = append(dst, c.Name...)
	nullable := byte(0)
	if c.Nullable {
		nullable = 1
	}
	return append(dst, byte(c.Type), nullable, c.IntWidth)
}

func (c *columnLayout) parse(d *decoder) {
	n := d.uvarint()
	c.Name = string(d.bytes(int(n)))
	c.Type = schema.DataType(d.uint8())
	nullable := d.uint8()
	c.IntWidth = d.uint8()
	if d.err != nil {
		return
	}
	switch {
	case !c.Type.Valid():
		d.fail("column %q has unknown type tag %d", c.Name, c.Type)
	case nullable > 1:
		d.fail("column %q has invalid nullable flag %d", c.Name, nullable)
	case c.Type == schema.Integer && !validWidth(c.IntWidth):
		d.fail("column %q has invalid integer width %d", c.Name, c.IntWidth)
	case c.Type != schema.Integer && c.IntWidth != 0:
		d.fail("%s column %q has integer width %d", c.Type, c.Name, c.IntWidth)
	}
	c.Nullable = nullable == 1
}

func (c columnLayout) field() schema.Field {
	return schema.Field{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
}

// schemaBlock is the ordered column layout of a file
type schemaBlock struct {
	Columns []columnLayout
}

func (s schemaBlock) appendTo(dst []byte) []byte {
	var payload []byte
	payload = binary.AppendUvarint(payload, uint64(len(s.Columns)))
	for _, c := range s.Columns {
		payload = c.appendTo(payload)
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint32(dst, checksum(payload))
}

// parse decodes a payload whose checksum has already been verified
func (s *schemaBlock) parse(payload []byte) error {
	d := newDecoder(payload, tabulaerrors.ErrorTypeCorruptFooter)
	n := d.uvarint()
	if d.err == nil && n > uint64(len(payload)) {
		d.fail("schema declares %d columns in %d bytes", n, len(payload))
	}
	seen := make(map[string]struct{}, n)
	for i := uint64(0); i < n && d.err == nil; i++ {
		var c columnLayout
		c.parse(d)
		if _, dup := seen[c.Name]; dup && d.err == nil {
			d.fail("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		s.Columns = append(s.Columns, c)
	}
	if d.err == nil && d.off != len(payload) {
		d.fail("schema block has %d trailing bytes", len(payload)-d.off)
	}
	return d.err
}

func (s schemaBlock) schema() schema.Schema {
	fields := make([]schema.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = c.field()
	}
	return schema.Schema{Fields: fields}
}

func validWidth(w uint8) bool {
	return w == 1 || w == 2 || w == 4 || w == 8
}

// intWidth returns the narrowest two's complement width holding lo..hi
func intWidth(lo, hi int64) uint8 {
	switch {
	case lo >= math.MinInt8 && hi <= math.MaxInt8:
		return 1
	case lo >= math.MinInt16 && hi <= math.MaxInt16:
		return 2
	case lo >= math.MinInt32 && hi <= math.MaxInt32:
		return 4
	default:
		return 8
	}
}

// decoder reads little-endian values from a byte slice. The first short
// read records an error of errType and every later read returns zero.
type decoder struct {
	b       []byte
	off     int
	errType tabulaerrors.ErrorType
	err     error
}

func newDecoder(b []byte, errType tabulaerrors.ErrorType) *decoder {
	return &decoder{b: b, errType: errType}
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = tabulaerrors.Newf(d.errType, format, args...).WithDetail("offset", d.off)
	}
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.b)-d.off {
		d.fail("need %d bytes, %d left", n, len(d.b)-d.off)
		return nil
	}
	b := d.b[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint8() uint8 {
	b := d.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) uint16() uint16 {
	b := d.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) uint32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b[d.off:])
	if n <= 0 {
		d.fail("invalid uvarint")
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) remaining() int {
	return len(d.b) - d.off
}
