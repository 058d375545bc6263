// Package metrics records tabula pipeline metrics with Prometheus.
//
// Every Collector owns its registry, so runs and tests never share
// counters. The CLI writes the registry to a text file in the Prometheus
// exposition format at the end of a run:
//
//	m := metrics.NewCollector()
//	m.AddRows(metrics.StageIngest, table.NumRows())
//	done := m.Time(metrics.StageEncode)
//	encode()
//	done()
//	_ = m.WriteTextfile("tabula.prom")
//
// # Metrics
//
//	tabula_rows_total{stage}               rows passing through a stage
//	tabula_chunks_total{direction}         chunks encoded or decoded
//	tabula_bytes_total{direction}          bytes read or written
//	tabula_errors_total{type}              failures by error type
//	tabula_stage_duration_seconds{stage}   wall time per stage
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Stage names
const (
	StageIngest = "ingest"
	StageInfer  = "infer"
	StageBuild  = "build"
	StageEncode = "encode"
	StageDecode = "decode"
	StageExport = "export"
)

// Directions
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// Collector holds the metrics of one process
type Collector struct {
	registry      *prometheus.Registry
	rows          *prometheus.CounterVec
	chunks        *prometheus.CounterVec
	bytes         *prometheus.CounterVec
	errors        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with a fresh registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabula_rows_total",
				Help: "Total number of rows processed per stage",
			},
			[]string{"stage"},
		),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabula_chunks_total",
				Help: "Total number of colfile chunks encoded or decoded",
			},
			[]string{"direction"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabula_bytes_total",
				Help: "Total number of bytes read or written",
			},
			[]string{"direction"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabula_errors_total",
				Help: "Total number of failed runs by error type",
			},
			[]string{"type"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tabula_stage_duration_seconds",
				Help: "Wall time spent per pipeline stage",
				Buckets: []float64{
					0.001, // 1ms - tiny inputs
					0.01,
					0.1,
					1,  // 1s - typical files
					10, // 10s - large files
					60,
					600,
				},
			},
			[]string{"stage"},
		),
	}
	c.registry.MustRegister(c.rows, c.chunks, c.bytes, c.errors, c.stageDuration)
	return c
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// AddRows counts rows through stage
func (c *Collector) AddRows(stage string, n int) {
	c.rows.WithLabelValues(stage).Add(float64(n))
}

// AddChunks counts chunks in direction
func (c *Collector) AddChunks(direction string, n int) {
	c.chunks.WithLabelValues(direction).Add(float64(n))
}

// AddBytes counts bytes in direction
func (c *Collector) AddBytes(direction string, n int64) {
	c.bytes.WithLabelValues(direction).Add(float64(n))
}

// RecordError counts err under its tabulaerrors type
func (c *Collector) RecordError(err error) {
	if err == nil {
		return
	}
	c.errors.WithLabelValues(string(tabulaerrors.GetType(err))).Inc()
}

// ObserveStage records the duration of one stage
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Time starts timing stage and returns the function that records it
func (c *Collector) Time(stage string) func() {
	start := time.Now()
	return func() {
		c.ObserveStage(stage, time.Since(start))
	}
}

// WriteTextfile writes every metric to path in the Prometheus text format
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write metrics file").
			WithDetail("path", path)
	}
	return nil
}
