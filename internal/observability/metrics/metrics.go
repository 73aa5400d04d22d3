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
	importRows           metric.Int64Counter
	unresolvedPeriods    metric.Int64Counter
	unlinkedCredits      metric.Int64Counter
	missingPeriodization metric.Int64Counter
	snapshotRuns         metric.Int64Counter
	reconcileRuns        metric.Int64Counter
	ambiguousMatches     metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "revrec"
	}
	meter := provider.Meter(name)

	importRows, err := meter.Int64Counter("revrec_import_rows_total")
	if err != nil {
		return nil, err
	}
	unresolvedPeriods, err := meter.Int64Counter("revrec_unresolved_periods_total")
	if err != nil {
		return nil, err
	}
	unlinkedCredits, err := meter.Int64Counter("revrec_unlinked_credits_total")
	if err != nil {
		return nil, err
	}
	missingPeriodization, err := meter.Int64Counter("revrec_missing_periodization_total")
	if err != nil {
		return nil, err
	}
	snapshotRuns, err := meter.Int64Counter("revrec_snapshot_runs_total")
	if err != nil {
		return nil, err
	}
	reconcileRuns, err := meter.Int64Counter("revrec_reconcile_runs_total")
	if err != nil {
		return nil, err
	}
	ambiguousMatches, err := meter.Int64Counter("revrec_ambiguous_matches_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		importRows:           importRows,
		unresolvedPeriods:    unresolvedPeriods,
		unlinkedCredits:      unlinkedCredits,
		missingPeriodization: missingPeriodization,
		snapshotRuns:         snapshotRuns,
		reconcileRuns:        reconcileRuns,
		ambiguousMatches:     ambiguousMatches,
	}, nil
}

// RecordImport counts one month's imported rows and its data-quality misses.
func (m *Metrics) RecordImport(ctx context.Context, stream string, rows, unresolved, unlinked, missing int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("stream", strings.TrimSpace(stream)))
	opts := metric.WithAttributes(attrs...)
	m.importRows.Add(ctx, int64(rows), opts)
	m.unresolvedPeriods.Add(ctx, int64(unresolved), opts)
	m.unlinkedCredits.Add(ctx, int64(unlinked), opts)
	m.missingPeriodization.Add(ctx, int64(missing), opts)
}

// RecordSnapshot counts one snapshot computation.
func (m *Metrics) RecordSnapshot(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("stream", strings.TrimSpace(stream)))
	m.snapshotRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconcile counts one reconciliation run and its ambiguous ties.
func (m *Metrics) RecordReconcile(ctx context.Context, ambiguous int) {
	if m == nil {
		return
	}
	m.reconcileRuns.Add(ctx, 1)
	if ambiguous > 0 {
		m.ambiguousMatches.Add(ctx, int64(ambiguous))
	}
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"stream":   {},
	"job":      {},
	"category": {},
	"reason":   {},
}
