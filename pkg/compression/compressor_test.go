package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("id,name,value\n1,alpha,3.5\n2,beta,\n", 200))

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(alg), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: alg, Level: level})
				require.NoError(t, err)
				assert.Equal(t, alg, comp.Algorithm())
				assert.Equal(t, level, comp.Level())

				var buf bytes.Buffer
				w, err := comp.NewWriter(&buf)
				require.NoError(t, err)
				_, err = w.Write(original)
				require.NoError(t, err)
				require.NoError(t, w.Close())

				if alg != None {
					assert.Equal(t, alg, Detect(buf.Bytes()), "magic bytes")
					assert.Less(t, buf.Len(), len(original))
				}

				r, err := comp.NewReader(&buf)
				require.NoError(t, err)
				got, err := io.ReadAll(r)
				require.NoError(t, err)
				require.NoError(t, r.Close())
				assert.Equal(t, original, got)
			})
		}
	}
}

func TestFromPath(t *testing.T) {
	tests := map[string]struct {
		alg  Algorithm
		base string
	}{
		"data.csv":        {None, "data.csv"},
		"data.csv.gz":     {Gzip, "data.csv"},
		"data.csv.ZST":    {Zstd, "data.csv"},
		"data.tsv.lz4":    {LZ4, "data.tsv"},
		"data.csv.snappy": {Snappy, "data.csv"},
		"data.csv.s2":     {S2, "data.csv"},
	}
	for path, want := range tests {
		alg, base := FromPath(path)
		assert.Equal(t, want.alg, alg, path)
		assert.Equal(t, want.base, base, path)
	}
}

func TestDetectReaderKeepsBytes(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Gzip, Default)
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	alg, r, err := DetectReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, Gzip, alg)

	dec, err := NewReader(r, alg)
	require.NoError(t, err)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(got))

	alg, r, err = DetectReader(strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, None, alg)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "x", string(rest))
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{"": None, "GZ": Gzip, "zst": Zstd, "lz4": LZ4} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAlgorithm("brotli")
	assert.Error(t, err)

	_, err = NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}
