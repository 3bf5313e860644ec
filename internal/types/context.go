package types

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	deviceIDKey
	loggerKey
)

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns "" outside a request.
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// WithDeviceID records which device a request or sample stream belongs to.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey, id)
}

func GetDeviceID(ctx context.Context) string { return stringValue(ctx, deviceIDKey) }

func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns nil when no logger was attached.
func LoggerFromContext(ctx context.Context) Logger {
	l, _ := ctx.Value(loggerKey).(Logger)
	return l
}
