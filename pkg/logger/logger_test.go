package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)

	l, err := New(Config{Level: "debug", Encoding: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestGetIsShared(t *testing.T) {
	l := Get()
	require.NotNil(t, l)
	assert.Same(t, l, Get())
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx = ContextWithPaths(ctx, "scores.csv", "")
	FromContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "scores.csv", fields["input"])
	assert.NotContains(t, fields, "output")
}

func TestErrorFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	err := tabulaerrors.New(tabulaerrors.ErrorTypeTypeConversion, "bad value").
		WithDetail("row", 7).
		WithDetail("column", "score")

	zap.New(core).Error("run failed", ErrorFields(err)...)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "type_conversion", fields["error_type"])
	assert.EqualValues(t, 7, fields["row"])
	assert.Equal(t, "score", fields["column"])
	assert.Len(t, ErrorFields(context.Canceled), 1)
}
