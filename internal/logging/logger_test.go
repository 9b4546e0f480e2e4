package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragvisor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func encode(t *testing.T, enc zapcore.Encoder, msg string, fields ...zap.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Unix(0, 0), Message: msg}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encode(t, enc, "calling with Bearer abc.def",
		zap.String("api_key", "gsk_live"),
		zap.String("header", "Authorization: Bearer abc.def"),
		zap.Error(errors.New("upstream rejected key gsk_ABCDEFGHIJKLMNOPQRSTUVWXYZ")),
		zap.String("source", "doc.pdf"),
		zap.Int("chunks", 3),
	)

	assert.NotContains(t, out, "gsk_live")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "gsk_ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"source":"doc.pdf"`)
	assert.Contains(t, out, `"chunks":3`)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	child.AddString("token", "t0ken")
	child.AddString("collection", "rag_collection")

	out := encode(t, child, "ok")
	assert.NotContains(t, out, "t0ken")
	assert.Contains(t, out, `"collection":"rag_collection"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)

	out := encode(t, enc, "msg", zap.String("api_key", "visible"))
	assert.Contains(t, out, "visible")
}

func TestRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("12345"))
	assert.Equal(t, "[REDACTED:5]", f.String)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.Format = "xml" }},
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }},
		{"tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"pattern", func(c *Config) { c.Redaction.Patterns = []string{"[a-"} }},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"env": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNew(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel

	logger, err := New(cfg, nil)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	cfg.Output = OutputConfig{OTEL: true}
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestLevelFilterCore(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)

	errorsOnly := &levelFilterCore{Core: core, atLeast: zapcore.ErrorLevel, hasMin: true}
	belowError := &levelFilterCore{Core: core, below: zapcore.ErrorLevel}

	zap.New(errorsOnly).Info("dropped")
	zap.New(errorsOnly).Error("kept error")
	zap.New(belowError).Error("dropped error")
	zap.New(belowError).Info("kept info")

	var msgs []string
	for _, e := range observed.All() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"kept error", "kept info"}, msgs)
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithRequestID(ctx, "req-1")

	fields := ContextFields(ctx)
	require.Len(t, fields, 3)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, sc.TraceID().String(), fields[0].String)
	assert.Equal(t, "request.id", fields[2].Key)
	assert.Equal(t, "req-1", fields[2].String)
}

func TestWithRequestID_IgnoresInvalid(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	assert.Empty(t, RequestIDFromContext(ctx))

	long := make([]byte, maxRequestIDLen+1)
	for i := range long {
		long[i] = 'a'
	}
	ctx = WithRequestID(context.Background(), string(long))
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	ctx = WithRequestID(ctx, "req-42")

	FromContext(ctx).Info("handled")
	tl.AssertLogged(t, zapcore.InfoLevel, "handled")
	tl.AssertField(t, "handled", "request.id", "req-42")
}
