// Package logger enriches zap log entries with request and trace identity.
package logger

import (
	"context"

	obscontext "github.com/halfnote/halfnote/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FromContext returns the global logger annotated with trace, request, and
// user identity when the context carries them.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}

	fields := make([]zap.Field, 0, 4)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if username := obscontext.UsernameFromContext(ctx); username != "" {
		fields = append(fields, zap.String("username", username))
	}
	if deviceID := obscontext.DeviceIDFromContext(ctx); deviceID != "" {
		fields = append(fields, zap.String("device_id", deviceID))
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}
