// Package pipeline drives tabula runs: delimited text is lexed, typed and
// built into a columnar table, which is then encoded to a colfile, decoded
// back, converted or exported to an interchange format.
//
// # Overview
//
// A Driver owns the configuration of a run and the supporting services:
//   - Storage: local files through mmap and atomic rename, S3 objects
//   - Metrics: Prometheus counters and stage timings
//   - Tracing: one OpenTelemetry span per operation
//
// Every public operation is a run with its own ksuid run id, carried in the
// logging context. Runs fail fast: the first error is returned, no partial
// table is handed back and no partial output is published.
//
// # Basic Usage
//
//	d, err := pipeline.NewDriver(cfg, pipeline.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	res, err := d.Import(ctx, "scores.csv", "scores.tbl")
//
//	table, err := d.Load(ctx, "scores.tbl")
package pipeline

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/csv"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/observability"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/storage"
)

// Driver runs ingest, encode, decode and export operations. It is safe for
// concurrent use; each call is an independent run.
type Driver struct {
	cfg      *config.Config
	dialect  csv.Dialect
	inferer  *schema.Inferer
	expected *schema.Schema

	store   storage.Store
	metrics *metrics.Collector
	tracer  *observability.Tracer
	logger  *zap.Logger
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the base logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithStore replaces the storage router
func WithStore(s storage.Store) Option {
	return func(d *Driver) { d.store = s }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithTracer sets the tracer
func WithTracer(t *observability.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// WithExpectedSchema makes colfile reads fail with schema_mismatch unless
// the stored schema is compatible with s
func WithExpectedSchema(s schema.Schema) Option {
	return func(d *Driver) { d.expected = &s }
}

// NewDriver validates cfg and creates a driver. A nil cfg uses the defaults.
func NewDriver(cfg *config.Config, opts ...Option) (*Driver, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := cfg.Dialect.CSV()
	if err != nil {
		return nil, err
	}

	d := &Driver{cfg: cfg.Clone(), dialect: dialect}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get()
	}
	d.logger = d.logger.With(zap.String("component", "pipeline"))
	if d.store == nil {
		d.store = storage.NewRouter(d.cfg.Storage, d.logger)
	}
	if d.metrics == nil {
		d.metrics = metrics.NewCollector()
	}
	if d.tracer == nil {
		d.tracer = observability.Noop()
	}
	d.inferer = schema.NewInferer(d.cfg.SchemaInference(), d.logger)
	return d, nil
}

// Config returns a copy of the driver configuration
func (d *Driver) Config() *config.Config {
	return d.cfg.Clone()
}

// Metrics returns the collector the driver records into
func (d *Driver) Metrics() *metrics.Collector {
	return d.metrics
}

// Result summarises a completed run
type Result struct {
	RunID    string        `json:"run_id"`
	Op       string        `json:"op"`
	Input    string        `json:"input,omitempty"`
	Output   string        `json:"output,omitempty"`
	Format   string        `json:"format,omitempty"`
	Rows     int           `json:"rows"`
	Columns  int           `json:"columns"`
	Chunks   int           `json:"chunks"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// run tracks one operation from begin to finish
type run struct {
	d      *Driver
	span   *observability.Span
	logger *zap.Logger
	start  time.Time
	result *Result
}

func (d *Driver) begin(ctx context.Context, op, input, output string) (context.Context, *run) {
	id := ksuid.New().String()
	ctx = logger.ContextWithRunID(ctx, id)
	ctx = logger.ContextWithPaths(ctx, input, output)
	ctx, span := d.tracer.StartSpan(ctx, op)
	span.SetAttribute("run_id", id)
	if input != "" {
		span.SetAttribute("input", input)
	}
	if output != "" {
		span.SetAttribute("output", output)
	}

	r := &run{
		d:      d,
		span:   span,
		logger: logger.FromContext(ctx, d.logger).With(zap.String("op", op)),
		start:  time.Now(),
		result: &Result{RunID: id, Op: op, Input: input, Output: output},
	}
	r.logger.Debug("run started")
	return ctx, r
}

// finish closes the run. On success the summary is logged at Info; on
// failure the error and its details are logged and counted.
func (r *run) finish(err error) (*Result, error) {
	defer r.span.End()
	r.result.Duration = time.Since(r.start)
	if err != nil {
		r.span.RecordError(err)
		r.d.metrics.RecordError(err)
		r.logger.Error("run failed", logger.ErrorFields(err)...)
		return nil, err
	}

	res := r.result
	r.span.SetAttribute("rows", res.Rows)
	r.span.SetAttribute("columns", res.Columns)
	r.span.SetAttribute("bytes", res.Bytes)
	r.logger.Info("run completed",
		zap.Int("rows", res.Rows),
		zap.Int("columns", res.Columns),
		zap.Int("chunks", res.Chunks),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", res.Duration))
	return res, nil
}
