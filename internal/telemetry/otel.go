package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "github.com/toolgate/toolgate"
const tracerName = "github.com/toolgate/toolgate"

// ProviderConfig configures the OpenTelemetry SDK providers backing this
// process's tracing and metrics.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	// TraceExporter is optional; when nil spans are recorded but not
	// exported, which is sufficient for local stdio operation without a
	// collector configured.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider registers a MeterProvider (with a Prometheus bridge) and a
// TracerProvider as the global OTel providers. Returns a shutdown function
// to call once at process exit.
func InitProvider(_ context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "toolgate"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	var shutdownFuncs []func(context.Context) error

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}

// Tracer returns the gateway's tracer from the global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Metrics holds the OpenTelemetry metric instruments the gateway records
// against: routing latency, fallback rate, and telemetry-queue drops.
type Metrics struct {
	RoutingDuration  metric.Float64Histogram
	RoutingFallbacks metric.Int64Counter
	ToolCallDuration metric.Float64Histogram
	ToolCalls        metric.Int64Counter
	QueueDrops       metric.Int64Counter
	DownstreamState  metric.Int64Counter
}

// NewMetrics creates every instrument against mp's meter.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.RoutingDuration, err = m.Float64Histogram("toolgate.routing.duration",
		metric.WithDescription("Latency of Router.Route calls."), metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.RoutingFallbacks, err = m.Int64Counter("toolgate.routing.fallbacks",
		metric.WithDescription("Count of routing decisions that triggered fallback."),
	); err != nil {
		return nil, err
	}
	if met.ToolCallDuration, err = m.Float64Histogram("toolgate.tool_call.duration",
		metric.WithDescription("Latency of downstream tools/call round trips."), metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("toolgate.tool_call.count",
		metric.WithDescription("Count of downstream tools/call requests (retries included in one count) by outcome."),
	); err != nil {
		return nil, err
	}
	if met.QueueDrops, err = m.Int64Counter("toolgate.telemetry.queue_drops",
		metric.WithDescription("Count of trace events dropped for backpressure."),
	); err != nil {
		return nil, err
	}
	if met.DownstreamState, err = m.Int64Counter("toolgate.downstream.state_changes",
		metric.WithDescription("Count of downstream server state transitions by server."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordRouting records one Router.Route call's latency and fallback status.
func (m *Metrics) RecordRouting(ctx context.Context, seconds float64, triggeredFallback bool) {
	m.RoutingDuration.Record(ctx, seconds)
	if triggeredFallback {
		m.RoutingFallbacks.Add(ctx, 1)
	}
}

// RecordToolCall records one Pool.Call, covering all of its retry attempts.
func (m *Metrics) RecordToolCall(ctx context.Context, qualifiedName string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolCallDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", qualifiedName)))
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", qualifiedName), attribute.String("status", status)))
}

// RecordDownstreamStateChange records one Connection Pool state transition.
func (m *Metrics) RecordDownstreamStateChange(ctx context.Context, server, from, to string) {
	m.DownstreamState.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server), attribute.String("from", from), attribute.String("to", to),
	))
}
