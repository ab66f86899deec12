package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Keys that may carry account or token data never reach a span.
var blockedKeys = []string{"token", "secret", "password", "authorization", "account_id", "card"}

// ExtractContext reads trace headers from carrier into ctx.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes whose key looks sensitive.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isBlocked(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error safe to record on a span. Only the first line of
// the message is kept.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if msg == "" {
		msg = "error"
	}
	return errors.New(msg)
}

// StartSpan starts an internal span named after a billing step.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("allotment/billing").Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs...)...))
}

func isBlocked(key string) bool {
	key = strings.ToLower(key)
	for _, blocked := range blockedKeys {
		if strings.Contains(key, blocked) {
			return true
		}
	}
	return false
}
