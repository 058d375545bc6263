package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/formats/colfile"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func benchDriver(b *testing.B, mutate func(*config.Config)) *Driver {
	b.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	d, err := NewDriver(cfg, WithLogger(zap.NewNop()))
	require.NoError(b, err)
	return d
}

// BenchmarkIngest measures text to table for both inference policies
func BenchmarkIngest(b *testing.B) {
	input := testutil.GenerateCSV(100000)

	for _, policy := range []schema.Policy{schema.PolicySample, schema.PolicyFull} {
		b.Run(string(policy), func(b *testing.B) {
			d := benchDriver(b, func(c *config.Config) { c.Inference.Policy = string(policy) })
			ctx := context.Background()

			b.SetBytes(int64(len(input)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := d.Ingest(ctx, strings.NewReader(input)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEncode measures table to colfile across chunk sizes and worker
// counts
func BenchmarkEncode(b *testing.B) {
	d := benchDriver(b, nil)
	ctx := context.Background()
	t, err := d.Ingest(ctx, strings.NewReader(testutil.GenerateCSV(100000)))
	require.NoError(b, err)

	for _, chunkSize := range []int{1024, 16384, 65536} {
		for _, workers := range []int{1, 4} {
			opts := colfile.WriterOptions{ChunkSize: chunkSize, Workers: workers}
			b.Run(fmt.Sprintf("chunk=%d/workers=%d", chunkSize, workers), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := colfile.Encode(ctx, t, io.Discard, opts); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkDecode measures colfile to table
func BenchmarkDecode(b *testing.B) {
	d := benchDriver(b, nil)
	ctx := context.Background()
	t, err := d.Ingest(ctx, strings.NewReader(testutil.GenerateCSV(100000)))
	require.NoError(b, err)
	var buf bytes.Buffer
	_, err = colfile.Encode(ctx, t, &buf, colfile.WriterOptions{ChunkSize: 16384})
	require.NoError(b, err)
	data := buf.Bytes()

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := colfile.Decode(ctx, data, colfile.ReaderOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
