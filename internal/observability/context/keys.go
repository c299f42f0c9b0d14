// Package context carries observability identity through request contexts.
package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	usernameKey  contextKey = "observability_username"
	deviceIDKey  contextKey = "observability_device_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithUsername(ctx context.Context, username string) context.Context {
	if ctx == nil || username == "" {
		return ctx
	}
	return context.WithValue(ctx, usernameKey, username)
}

func UsernameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(usernameKey).(string)
	return value
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	if ctx == nil || deviceID == "" {
		return ctx
	}
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func DeviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(deviceIDKey).(string)
	return value
}
