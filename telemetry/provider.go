package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vinayprograms/freightkit/config"
)

// Environment fallbacks, as read by other OpenTelemetry SDKs.
const (
	envEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envServiceName = "OTEL_SERVICE_NAME"
)

// ProviderConfig configures OTLP trace export.
type ProviderConfig struct {
	// ServiceName defaults to $OTEL_SERVICE_NAME, then "freightkit".
	ServiceName    string
	ServiceVersion string

	// Endpoint is host:port, with or without an http(s):// prefix.
	// Defaults to $OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol is "grpc" (default) or "http".
	Protocol string

	Insecure bool
	Headers  map[string]string

	// SampleRate is the fraction of root traces kept. Zero or one keeps
	// every trace.
	SampleRate float64

	BatchTimeout  time.Duration
	ExportTimeout time.Duration
}

// ProviderConfigFrom maps the [telemetry] config section. An endpoint
// without an https:// prefix is exported without TLS.
func ProviderConfigFrom(c config.TelemetryConfig) ProviderConfig {
	return ProviderConfig{
		ServiceName: c.ServiceName,
		Endpoint:    c.Endpoint,
		Protocol:    c.Protocol,
		Insecure:    !strings.HasPrefix(c.Endpoint, "https://"),
		SampleRate:  c.SampleRate,
	}
}

func (c ProviderConfig) endpoint() (string, error) {
	ep := c.Endpoint
	if ep == "" {
		ep = os.Getenv(envEndpoint)
	}
	if ep == "" {
		return "", fmt.Errorf("telemetry endpoint not configured (set endpoint or %s)", envEndpoint)
	}
	ep = strings.TrimPrefix(ep, "https://")
	return strings.TrimPrefix(ep, "http://"), nil
}

func (c ProviderConfig) serviceName() string {
	if c.ServiceName != "" {
		return c.ServiceName
	}
	if name := os.Getenv(envServiceName); name != "" {
		return name
	}
	return "freightkit"
}

func (c ProviderConfig) sampler() sdktrace.Sampler {
	if c.SampleRate <= 0 || c.SampleRate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
}

func newExporter(ctx context.Context, c ProviderConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch c.Protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if c.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(c.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(c.Headers))
		}
		if c.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(c.ExportTimeout))
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if c.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(c.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
		}
		if c.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(c.ExportTimeout))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown protocol %q (use grpc or http)", c.Protocol)
	}
}

// Provider owns the SDK tracer provider; Shutdown flushes it.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider starts OTLP export, installs the provider and a W3C
// propagator globally, and makes its tracer the package tracer.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}
	name := cfg.serviceName()

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry exporter: %w", err)
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p := &Provider{tp: tp, tracer: NewTracer(name)}
	SetGlobalTracer(p.tracer)
	return p, nil
}

func (p *Provider) Tracer() *Tracer { return p.tracer }

func (p *Provider) Shutdown(ctx context.Context) error { return p.tp.Shutdown(ctx) }

func (p *Provider) ForceFlush(ctx context.Context) error { return p.tp.ForceFlush(ctx) }
