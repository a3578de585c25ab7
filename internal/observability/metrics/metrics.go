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

// Metrics exposes application-level instruments.
type Metrics struct {
	postings        metric.Int64Counter
	postingReplays  metric.Int64Counter
	accruals        metric.Int64Counter
	refundDecisions metric.Int64Counter
	recalculations  metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "financeos"
	}
	meter := provider.Meter(name)

	postings, err := meter.Int64Counter("financeos_ledger_postings_total")
	if err != nil {
		return nil, err
	}
	postingReplays, err := meter.Int64Counter("financeos_ledger_posting_replays_total")
	if err != nil {
		return nil, err
	}
	accruals, err := meter.Int64Counter("financeos_supplier_accruals_total")
	if err != nil {
		return nil, err
	}
	refundDecisions, err := meter.Int64Counter("financeos_refund_decisions_total")
	if err != nil {
		return nil, err
	}
	recalculations, err := meter.Int64Counter("financeos_balance_recalculations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		postings:        postings,
		postingReplays:  postingReplays,
		accruals:        accruals,
		refundDecisions: refundDecisions,
		recalculations:  recalculations,
	}, nil
}

// RecordPosting increments posting counts per event type.
func (m *Metrics) RecordPosting(ctx context.Context, event string, replayed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("event", strings.TrimSpace(event)))
	if replayed {
		m.postingReplays.Add(ctx, 1, attrs)
		return
	}
	m.postings.Add(ctx, 1, attrs)
}

// RecordAccrual increments supplier accrual counts.
func (m *Metrics) RecordAccrual(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.accruals.Add(ctx, 1, metric.WithAttributes(attribute.String("status", strings.TrimSpace(status))))
}

// RecordRefundDecision increments refund decision counts.
func (m *Metrics) RecordRefundDecision(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.refundDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", strings.TrimSpace(decision))))
}

// RecordRecalculation increments balance recalculation counts.
func (m *Metrics) RecordRecalculation(ctx context.Context) {
	if m == nil {
		return
	}
	m.recalculations.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp metric protocol %q", protocol)
	}
}
