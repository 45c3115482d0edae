// Package apm wires OpenTelemetry tracing for the scanner. The exporter
// is chosen from configuration; an unset or unknown exporter resolves to
// a no-op provider so instrumented code never has to branch on telemetry
// being enabled.
package apm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"arbscan/internal/logger"
)

// Exporter selects the span exporter backend.
type Exporter string

const (
	OTLPGRPCExporter Exporter = "otlp-grpc"
	OTLPHTTPExporter Exporter = "otlp-http"
	ZipkinExporter   Exporter = "zipkin"
	ConsoleExporter  Exporter = "console"
	NoneExporter     Exporter = "none"
)

// TraceProvider owns the exporter pipeline and must be stopped on
// shutdown to flush buffered spans.
type TraceProvider interface {
	Stop() error
}

// ProviderConfig describes the trace pipeline to build.
type ProviderConfig struct {
	ServiceName string
	Exporter    Exporter
	Endpoint    string
	Insecure    bool
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type noopTraceProvider struct{}

func (noopTraceProvider) Stop() error { return nil }

// NewTraceProvider builds the exporter named by cfg, installs the
// resulting tracer provider and W3C propagators globally, and returns a
// handle for shutdown.
func NewTraceProvider(cfg ProviderConfig, log logger.LoggerInterface) TraceProvider {
	exp, err := newExporter(cfg)
	if err != nil {
		log.Error(context.Background(), "failed to initialize trace exporter",
			"exporter", string(cfg.Exporter), "error", err)
		return noopTraceProvider{}
	}
	if exp == nil {
		return noopTraceProvider{}
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.exporter", string(cfg.Exporter)),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(context.Background(), "tracing enabled",
		"exporter", string(cfg.Exporter), "endpoint", cfg.Endpoint)

	return &traceProvider{tp}
}

func newExporter(cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case OTLPGRPCExporter:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(context.Background(), opts...)
	case OTLPHTTPExporter:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(context.Background(), opts...)
	case ZipkinExporter:
		return zipkin.New(cfg.Endpoint)
	case ConsoleExporter:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, nil
	}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return o.tp.Shutdown(ctx)
}
