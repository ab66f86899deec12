package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("currency", "USD"),
		attribute.String("entity_reference", "acme"),
		attribute.String("status", "SUCCESS"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "entity_reference" {
			t.Fatalf("entity_reference must not be used as a label")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCharge(context.Background(), "usd", "SUCCESS", 10)
	m.RecordReplay(context.Background(), "applied")
	m.RecordInvoiceFailure(context.Background(), "generate")
	m.RecordCatalogRefresh(context.Background(), "redis", false)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "allotment"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordCharge(context.Background(), "usd", "SUCCESS", 12.5)
	m.RecordCatalogRefresh(context.Background(), "redis", true)
}
