// Package tabula turns delimited text into typed columnar tables and stores
// them in colfile, a chunked, self-describing columnar file format.
//
// # Architecture
//
// Ingestion flows strictly left to right, and the decode path reverses the
// last step:
//
//	text -> csv.Reader -> schema.Inferer -> columnar.Builder -> columnar.Table -> colfile.Writer -> bytes
//	bytes -> colfile.Reader -> columnar.Table
//
// 1. Lexing: pkg/csv splits records and fields under a configurable dialect
// (delimiter, quote, escape, record delimiter, header). By default records
// whose field count differs from the header are rejected; with enforcement
// off, short records are padded with nulls.
//
// 2. Inference: pkg/schema picks the narrowest type of every column on the
// lattice integer < float < boolean < string. Whether a leading sample or
// every row is inspected is an explicit policy.
//
// 3. Building: pkg/columnar parses each column under its committed type into
// a dense buffer plus a validity bitmap. Tables are immutable once built and
// split into chunk views without copying.
//
// 4. Encoding: pkg/formats/colfile writes a header, the schema, one block per
// chunk and a checksummed footer that indexes every chunk for random access.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/tabula/internal/pipeline"
//	    "github.com/ajitpratap0/tabula/pkg/config"
//	)
//
//	cfg := config.Default()
//	cfg.Codec.ChunkSize = 10000
//	cfg.Inference.Policy = "full"
//
//	d, _ := pipeline.NewDriver(cfg)
//	res, err := d.Convert(context.Background(), "scores.csv", "scores.tbl")
//
// # Key Packages
//
//	pkg/csv             - Delimited text lexer and writer
//	pkg/schema          - Type lattice, schemas and type inference
//	pkg/columnar        - Columns, validity bitmaps, tables and chunks
//	pkg/formats/colfile - The on-disk columnar format
//	pkg/formats/columnar - Arrow IPC, Parquet and Avro interchange
//	pkg/storage         - Local (atomic rename, mmap) and S3 storage
//	pkg/compression     - Compressed text streams
//	pkg/config          - Configuration loading and validation
//	pkg/tabulaerrors    - Structured errors
//	pkg/logger          - Structured logging
//	pkg/metrics         - Prometheus metrics
//	pkg/observability   - OpenTelemetry tracing
//
// # Configuration
//
// Configuration is a YAML file with one section per component:
//
//	type Config struct {
//	    Dialect       DialectConfig       // delimiter, quote, escape, header
//	    Inference     InferenceConfig     // policy, sample size, boolean tokens
//	    Builder       BuilderConfig       // null tokens, conversion failure policy
//	    Codec         CodecConfig         // chunk size, workers, verify
//	    Storage       StorageConfig       // timeouts, S3 client
//	    Logging       LoggingConfig       // level, encoding
//	    Observability ObservabilityConfig // tracing, metrics file
//	}
//
// Environment variables are supported with ${VAR_NAME} syntax. The tabula
// command additionally reads TABULA_* variables and flags.
//
// # Development
//
//	go test ./...                   # Unit tests
//	go test -bench=. ./internal/... # Pipeline benchmarks
//	go run ./cmd/tabula help
package tabula
