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
	sessionsIngested metric.Int64Counter
	postingRuns      metric.Int64Counter
	sessionsPosted   metric.Int64Counter
	ledgerRequests   metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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
		name = "tutorledger"
	}
	meter := provider.Meter(name)

	sessionsIngested, err := meter.Int64Counter("tutorledger_sessions_ingested_total")
	if err != nil {
		return nil, err
	}
	postingRuns, err := meter.Int64Counter("tutorledger_posting_runs_total")
	if err != nil {
		return nil, err
	}
	sessionsPosted, err := meter.Int64Counter("tutorledger_sessions_posted_total")
	if err != nil {
		return nil, err
	}
	ledgerRequests, err := meter.Int64Counter("tutorledger_ledger_requests_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("tutorledger_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessionsIngested: sessionsIngested,
		postingRuns:      postingRuns,
		sessionsPosted:   sessionsPosted,
		ledgerRequests:   ledgerRequests,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordSessionIngested increments ingest counts labelled by resulting status.
func (m *Metrics) RecordSessionIngested(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.sessionsIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPostingRun increments posting run counts.
func (m *Metrics) RecordPostingRun(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.postingRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSessionsPosted adds the number of sessions flipped to posted.
func (m *Metrics) RecordSessionsPosted(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sessionsPosted.Add(ctx, int64(count))
}

// RecordLedgerRequest increments external ledger call counts.
func (m *Metrics) RecordLedgerRequest(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.ledgerRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"status":    {},
	"mode":      {},
	"outcome":   {},
	"operation": {},
	"endpoint":  {},
	"reason":    {},
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
