package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stdout"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/sub/franchise.log"}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestZapLogger_WritesTypedFields(t *testing.T) {
	l, logs := newObservedLogger()
	approvedAt := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	l.Info("franchise approved",
		Int64("franchise_id", 42),
		String("status", "approved"),
		Bool("renewal", false),
		Time("approval_date", approvedAt),
		Duration("elapsed", 3*time.Millisecond),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "franchise approved", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, int64(42), ctx["franchise_id"])
	assert.Equal(t, "approved", ctx["status"])
	assert.Equal(t, false, ctx["renewal"])
	assert.Equal(t, approvedAt, ctx["approval_date"])
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, logs := newObservedLogger()
	child := l.Named("franchise").With(String("component", "transition"))
	child.Warn("stale status")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "franchise", entry.LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "transition", entry.ContextMap()["component"])
}

func TestErrField(t *testing.T) {
	l, logs := newObservedLogger()
	l.Error("failed", Err(errors.New("db down")))
	assert.Equal(t, "db down", logs.All()[0].ContextMap()["error"])

	assert.Equal(t, "", Err(nil).Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.Equal(t, l, l.With(String("a", "b")))
	assert.Equal(t, l, l.Named("n"))
	assert.NoError(t, Sync(l))
}

func TestDefaultLogger(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, _ := newObservedLogger()
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default())
}
