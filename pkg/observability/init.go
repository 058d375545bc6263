// Package observability provides OpenTelemetry tracing for tabula runs.
//
// Tracing is off by default. When enabled, spans are exported as JSON to
// the configured writer through the stdout exporter:
//
//	tracer, err := observability.NewTracer(observability.Config{Enabled: true, ServiceName: "tabula"})
//	defer tracer.Shutdown(ctx)
//
//	ctx, span := tracer.StartSpan(ctx, "ingest")
//	defer span.End()
package observability

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Config contains tracing configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Writer receives exported spans. Defaults to stderr.
	Writer      io.Writer
	PrettyPrint bool
}

// Tracer starts spans for pipeline stages
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer. A disabled configuration yields a no-op tracer.
func NewTracer(cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tabula"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to create trace resource")
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(cfg.Writer)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to create stdout exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	return &Tracer{provider: tp, tracer: tp.Tracer(cfg.ServiceName)}, nil
}

// Noop returns a tracer that records nothing
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("tabula")}
}

// Enabled reports whether spans are exported
func (t *Tracer) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes pending spans
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to shutdown tracer")
	}
	return nil
}
