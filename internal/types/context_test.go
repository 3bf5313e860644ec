package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_RequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-2")
	assert.Equal(t, "req-2", GetRequestID(ctx), "inner value wins")
}

func TestContext_DeviceID(t *testing.T) {
	ctx := WithDeviceID(context.Background(), "phone-7")
	assert.Equal(t, "phone-7", GetDeviceID(ctx))
	assert.Empty(t, GetRequestID(ctx), "keys must not collide")
	assert.Empty(t, GetDeviceID(context.Background()))
}

type recordingLogger struct {
	NopLogger
	fields []any
}

func (r *recordingLogger) With(args ...any) Logger {
	return &recordingLogger{fields: append(append([]any(nil), r.fields...), args...)}
}

func TestContext_Logger(t *testing.T) {
	assert.Nil(t, LoggerFromContext(context.Background()))

	base := &recordingLogger{}
	ctx := WithLogger(context.Background(), base.With("device_id", "phone-7"))

	got, ok := LoggerFromContext(ctx).(*recordingLogger)
	if assert.True(t, ok) {
		assert.Equal(t, []any{"device_id", "phone-7"}, got.fields)
	}
}

func TestSlogLogger_NilDiscards(t *testing.T) {
	l := NewSlogLogger(nil)
	assert.NotPanics(t, func() {
		l.Info("x")
		l.With("k", "v").Warn("y")
	})
}
