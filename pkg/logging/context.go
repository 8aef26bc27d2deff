package logging

import (
	"context"
)

const (
	TraceIDKey       = "trace_id"
	MessageIDKey     = "message_id"
	ServiceNameKey   = "service_name"
	InvocationIDKey  = "invocation_id"
	BatchIDKey       = "batch_id"
	CorrelationIDKey = "correlation_id"
	EntityIDKey      = "entity_id"
)

var contextKeys = []string{
	TraceIDKey,
	InvocationIDKey,
	BatchIDKey,
	CorrelationIDKey,
	MessageIDKey,
	EntityIDKey,
	ServiceNameKey,
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, invocationID)
}

func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func WithEntityID(ctx context.Context, entityID string) context.Context {
	return context.WithValue(ctx, EntityIDKey, entityID)
}

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return getString(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func GetInvocationID(ctx context.Context) string {
	return getString(ctx, InvocationIDKey)
}

func GetBatchID(ctx context.Context) string {
	return getString(ctx, BatchIDKey)
}

func GetCorrelationID(ctx context.Context) string {
	return getString(ctx, CorrelationIDKey)
}

func GetEntityID(ctx context.Context) string {
	return getString(ctx, EntityIDKey)
}

func getString(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields returns the key/value pairs of every identifier stored on ctx.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, len(contextKeys)*2)

	for _, key := range contextKeys {
		if v := getString(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
