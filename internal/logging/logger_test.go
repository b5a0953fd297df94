package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/aicacia/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func fileConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Caller.Enabled = false
	cfg.Output.File.Path = filepath.Join(t.TempDir(), "logs", "aicacia.log")
	return cfg
}

func readLog(t *testing.T, l *Logger, cfg *Config) string {
	t.Helper()
	require.NoError(t, l.Close())
	data, err := os.ReadFile(cfg.Output.File.Path)
	require.NoError(t, err)
	return string(data)
}

func TestNewLogger_WritesToRotatingFile(t *testing.T) {
	cfg := fileConfig(t)
	l, err := NewLogger(cfg)
	require.NoError(t, err)

	l.Info(context.Background(), "backend reachable", zap.String("base_url", "http://localhost:8000"))

	out := readLog(t, l, cfg)
	assert.Contains(t, out, `"msg":"backend reachable"`)
	assert.Contains(t, out, `"service":"aicacia"`)
	assert.Contains(t, out, `"base_url":"http://localhost:8000"`)
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	cfg := fileConfig(t)
	l, err := NewLogger(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	l.Info(ctx, "stored", zap.String("aicacia-api-token", "abc123"))
	l.With(zap.String("password", "hunter2")).Info(ctx, "login attempt")
	l.Info(ctx, "header", zap.String("value", "Bearer eyJhbGciOi.eyJzdWIi.sig"))

	out := readLog(t, l, cfg)
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "eyJhbGciOi")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "[REDACTED:pattern]")
}

func TestNewLogger_TraceLevelName(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Level = TraceLevel
	l, err := NewLogger(cfg)
	require.NoError(t, err)

	l.Trace(context.Background(), "response body")

	out := readLog(t, l, cfg)
	assert.Contains(t, out, `"level":"trace"`)
}

func TestNewLogger_LevelFilters(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Level = zapcore.WarnLevel
	l, err := NewLogger(cfg)
	require.NoError(t, err)

	assert.False(t, l.Enabled(zapcore.InfoLevel))
	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "visible")

	out := readLog(t, l, cfg)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")

	cfg = fileConfig(t)
	cfg.Format = "xml"
	_, err = NewLogger(cfg)
	assert.Error(t, err)

	cfg = fileConfig(t)
	cfg.Redaction.Patterns = []string{"("}
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	cfg, err := ConfigFrom(config.LoggingConfig{
		Level:      "trace",
		Format:     "console",
		File:       "/tmp/aicacia.log",
		Stderr:     true,
		MaxSizeMB:  1,
		MaxBackups: 2,
		MaxAgeDays: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.Stderr)
	assert.Equal(t, FileConfig{Path: "/tmp/aicacia.log", MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 3, Compress: true}, cfg.Output.File)

	_, err = ConfigFrom(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Sampling.Enabled = true
	cfg.Sampling.Levels = map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
	}
	l, err := NewLogger(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		l.Info(ctx, "poll")
		l.Error(ctx, "boom")
	}

	out := readLog(t, l, cfg)
	assert.Equal(t, 2, strings.Count(out, `"msg":"poll"`))
	assert.Equal(t, 10, strings.Count(out, `"msg":"boom"`))
}

func TestContextFields(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "42")

	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()

	tl := NewTestLogger()
	tl.Info(ctx, "chat sent")

	tl.AssertRequestID(t, "chat sent", "req-1")
	tl.AssertField(t, "chat sent", "user.id", "42")
	tl.AssertTraceCorrelation(t, "chat sent")
}

func TestWithRequestID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { WithRequestID(context.Background(), "") })
	assert.Panics(t, func() { WithRequestID(context.Background(), "has space") })
}

func TestWithUserID_IgnoresInvalid(t *testing.T) {
	ctx := WithUserID(context.Background(), "bad id!")
	assert.Empty(t, UserIDFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	tl.Debug(context.Background(), "token saved", RedactedString("token", "abc"))
	tl.AssertNoSecrets(t)
	tl.AssertField(t, "token saved", "token", "[REDACTED:3]")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"trace", TraceLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := LevelFromString("nope")
	assert.Error(t, err)
}
