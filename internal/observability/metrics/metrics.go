package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing instruments exported through OTLP.
type Metrics struct {
	charges         metric.Int64Counter
	amountCharged   metric.Float64Counter
	replays         metric.Int64Counter
	invoiceFailures metric.Int64Counter
	catalogRefresh  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the billing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "allotment"
	}
	meter := provider.Meter(name)

	charges, err := meter.Int64Counter("allotment_charges_total",
		metric.WithDescription("Treasury charges by resulting transaction status"))
	if err != nil {
		return nil, err
	}
	amountCharged, err := meter.Float64Counter("allotment_amount_charged_total",
		metric.WithDescription("Sum of successfully charged amounts"))
	if err != nil {
		return nil, err
	}
	replays, err := meter.Int64Counter("allotment_operation_replays_total")
	if err != nil {
		return nil, err
	}
	invoiceFailures, err := meter.Int64Counter("allotment_invoice_failures_total")
	if err != nil {
		return nil, err
	}
	catalogRefresh, err := meter.Int64Counter("allotment_catalog_refresh_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		charges:         charges,
		amountCharged:   amountCharged,
		replays:         replays,
		invoiceFailures: invoiceFailures,
		catalogRefresh:  catalogRefresh,
	}, nil
}

// RecordCharge counts one treasury charge. amount is only added for
// successful transactions.
func (m *Metrics) RecordCharge(ctx context.Context, currency, status string, amount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.charges.Add(ctx, 1, metric.WithAttributes(attrs...))
	if strings.EqualFold(status, "SUCCESS") && amount > 0 {
		m.amountCharged.Add(ctx, amount, metric.WithAttributes(attrs...))
	}
}

// RecordReplay counts an operation record replay and its outcome.
func (m *Metrics) RecordReplay(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.replays.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordInvoiceFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("stage", strings.TrimSpace(stage)))
	m.invoiceFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCatalogRefresh(ctx context.Context, source string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", outcome),
	)
	m.catalogRefresh.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"service":     {},
	"currency":    {},
	"status":      {},
	"status_code": {},
	"outcome":     {},
	"stage":       {},
	"source":      {},
	"job":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
