package otel

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "splitlab"
	serviceVersion = "1.0.0"
)

// Config holds OTEL exporter settings.
type Config struct {
	Endpoint string
	Insecure bool
}

// Exporter exports assignment engine counters to an OTEL Collector.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	meter            metric.Meter
	assignmentsTotal metric.Int64Counter
	racesTotal       metric.Int64Counter
	cacheLookups     metric.Int64Counter
	eventsEnqueued   metric.Int64Counter
}

// NewExporter creates a new OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	assignmentsTotal, err := meter.Int64Counter(
		"splitlab_assignments_total",
		metric.WithDescription("Assignments resolved, fresh or existing"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments counter: %w", err)
	}

	racesTotal, err := meter.Int64Counter(
		"splitlab_assignment_races_total",
		metric.WithDescription("Uniqueness conflicts recovered by the retry loop"),
		metric.WithUnit("{race}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating races counter: %w", err)
	}

	cacheLookups, err := meter.Int64Counter(
		"splitlab_cache_lookups_total",
		metric.WithDescription("Cache probes by entity kind and outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache lookups counter: %w", err)
	}

	eventsEnqueued, err := meter.Int64Counter(
		"splitlab_events_enqueued_total",
		metric.WithDescription("Events accepted by the relay"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	return &Exporter{
		provider:         provider,
		meter:            meter,
		assignmentsTotal: assignmentsTotal,
		racesTotal:       racesTotal,
		cacheLookups:     cacheLookups,
		eventsEnqueued:   eventsEnqueued,
	}, nil
}

func (e *Exporter) AssignmentResolved(ctx context.Context, experimentID int64, variant string, fresh bool) {
	e.assignmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment_id", strconv.FormatInt(experimentID, 10)),
		attribute.String("variant", variant),
		attribute.Bool("fresh", fresh),
	))
}

func (e *Exporter) RaceRecovered(ctx context.Context, experimentID int64) {
	e.racesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment_id", strconv.FormatInt(experimentID, 10)),
	))
}

func (e *Exporter) CacheLookup(ctx context.Context, kind string, hit bool) {
	e.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("hit", hit),
	))
}

func (e *Exporter) EventEnqueued(ctx context.Context, eventType string) {
	e.eventsEnqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
	))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
