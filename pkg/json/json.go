// Package json provides JSON serialization backed by goccy/go-json
package json

import (
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/tabula/pkg/pool"
)

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalToWriter encodes v into a pooled buffer and writes it to w in one
// call, followed by a newline. Nothing is written if encoding fails.
func MarshalToWriter(w io.Writer, v interface{}) error {
	buf := pool.Buffers.Get()
	defer pool.Buffers.Put(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// StreamingEncoder writes values as JSON lines or as one JSON array
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
	pretty      bool
	err         error
}

// NewStreamingEncoder creates a streaming encoder. With isArray the values
// are wrapped in brackets and separated by commas.
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)

	se := &StreamingEncoder{
		writer:      w,
		encoder:     enc,
		firstRecord: true,
		isArray:     isArray,
	}
	if isArray {
		se.write([]byte{'['})
	}
	return se
}

// SetPretty enables indentation
func (se *StreamingEncoder) SetPretty(pretty bool, indent string) {
	se.pretty = pretty
	if pretty {
		se.encoder.SetIndent("", indent)
	}
}

func (se *StreamingEncoder) write(p []byte) {
	if se.err == nil {
		_, se.err = se.writer.Write(p)
	}
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray {
		if !se.firstRecord {
			se.write([]byte{','})
		}
		se.firstRecord = false
	}
	if se.err != nil {
		return se.err
	}
	// the encoder terminates every value with a newline
	se.err = se.encoder.Encode(v)
	return se.err
}

// Close finalizes the output and returns the first write error
func (se *StreamingEncoder) Close() error {
	if se.isArray {
		se.write([]byte{']', '\n'})
	}
	return se.err
}
