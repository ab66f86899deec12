package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/subscriptions/info"),
		attribute.String("treasury.account_id", "acc-1"),
		attribute.String("auth.token", "x"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	err := SafeError(errors.New("charge failed\nstack detail"))
	if err.Error() != "charge failed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
