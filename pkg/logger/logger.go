// Package logger provides structured logging for tabula
package logger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// contextKey is the type for context keys
type contextKey string

const (
	// RunIDKey is the context key for the pipeline run ID
	RunIDKey contextKey = "run_id"
	// InputKey is the context key for the input path
	InputKey contextKey = "input"
	// OutputKey is the context key for the output path
	OutputKey contextKey = "output"
)

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// New creates a zap logger from cfg without touching the global logger.
// Output goes to stderr unless OutputPaths is set, so stdout stays free
// for table output.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Get returns the process-wide default logger: JSON at warn level on
// stderr, or a no-op logger if that cannot be built
func Get() *zap.Logger {
	once.Do(func() {
		l, err := New(Config{Level: "warn", Encoding: "json"})
		if err != nil {
			l = zap.NewNop()
		}
		globalLogger = l
	})
	return globalLogger
}

// ContextWithRunID returns a context carrying the run ID
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// ContextWithPaths returns a context carrying the input and output paths.
// Empty paths are not stored.
func ContextWithPaths(ctx context.Context, input, output string) context.Context {
	if input != "" {
		ctx = context.WithValue(ctx, InputKey, input)
	}
	if output != "" {
		ctx = context.WithValue(ctx, OutputKey, output)
	}
	return ctx
}

// FromContext decorates base with the context values
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base

	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		logger = logger.With(zap.String("run_id", runID))
	}

	if input, ok := ctx.Value(InputKey).(string); ok {
		logger = logger.With(zap.String("input", input))
	}

	if output, ok := ctx.Value(OutputKey).(string); ok {
		logger = logger.With(zap.String("output", output))
	}

	return logger
}

// ErrorFields returns the error plus its type and details as zap fields
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}

	var e *tabulaerrors.Error
	if !errors.As(err, &e) {
		return fields
	}
	fields = append(fields, zap.String("error_type", string(e.Type)))
	for k, v := range e.Details {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}
