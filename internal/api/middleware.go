package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"drivewatch/internal/types"
)

// Request headers the engine reads.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderDeviceID  = "X-Device-Id"
)

// accessLogHeaders are copied into access lines. Anything else is omitted.
var accessLogHeaders = []string{"User-Agent", "Content-Type", "Authorization"}

// sensitiveHeaders are logged masked even when listed.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
}

// Recoverer turns a handler panic into a logged 500 carrying the usual error
// body.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			s.Logger.Error("handler panic",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", types.GetRequestID(r.Context())),
				slog.String("panic", fmt.Sprint(rvr)),
				slog.String("stack", string(debug.Stack())),
			)
			Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", nil))
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestLogger writes one access line per request with the given headers.
// Credentials among them are masked.
func RequestLogger(logger *slog.Logger, headers []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", types.GetRequestID(r.Context())),
			}
			if dev := types.GetDeviceID(r.Context()); dev != "" {
				attrs = append(attrs, slog.String("device_id", dev))
			}
			if hs := headerAttrs(r.Header, headers); len(hs) > 0 {
				attrs = append(attrs, slog.Group("headers", hs...))
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

func headerAttrs(h http.Header, names []string) []any {
	var out []any
	for _, name := range names {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if sensitiveHeaders[strings.ToLower(name)] {
			v = "[REDACTED]"
		}
		out = append(out, slog.String(name, v))
	}
	return out
}

// ContextTimeoutMiddleware bounds each request's context to d.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses the caller's X-Request-Id or mints one, and
// echoes it back.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// RequestScopedLogger attaches a logger tagged with the request ID so
// downstream components log against the request.
func (s *Server) RequestScopedLogger(next http.Handler) http.Handler {
	base := types.NewSlogLogger(s.Logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := base.With("request_id", types.GetRequestID(r.Context()))
		next.ServeHTTP(w, r.WithContext(types.WithLogger(r.Context(), l)))
	})
}

// DeviceIDMiddleware attributes the request to X-Device-Id. Samples without
// their own device_id inherit it.
func DeviceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HeaderDeviceID)); id != "" {
			r = r.WithContext(types.WithDeviceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
