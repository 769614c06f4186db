// OpenTelemetry tracing for planning passes and shipment execution.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an OpenTelemetry tracer with span helpers for planning and dispatch.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerWithProvider creates a tracer from a specific provider.
func NewTracerWithProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Plan Spans ---

// PlanSpanOptions describes a finished planning pass.
type PlanSpanOptions struct {
	PlanID    string
	Suppliers int
	Shipments int
	Vessels   int64
	Deferred  int64 // units left for a later pass
}

// StartPlanSpan starts a span for one planning pass.
func (t *Tracer) StartPlanSpan(ctx context.Context, destination, mode string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "plan", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("plan.destination", destination),
		attribute.String("plan.mode", mode),
	)
	return ctx, span
}

// EndPlanSpan ends a plan span with attributes.
func (t *Tracer) EndPlanSpan(span trace.Span, opts PlanSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("plan.id", opts.PlanID),
		attribute.Int("plan.suppliers", opts.Suppliers),
		attribute.Int("plan.shipments", opts.Shipments),
		attribute.Int64("plan.vessels", opts.Vessels),
		attribute.Int64("plan.deferred_units", opts.Deferred),
	)
	end(span, err)
}

// --- Execution Spans ---

// ExecutionSpanOptions describes a finished execution run.
type ExecutionSpanOptions struct {
	State        string
	Completed    int
	Failed       int
	NotAttempted int
}

// StartExecutionSpan starts the parent span of an execution run.
func (t *Tracer) StartExecutionSpan(ctx context.Context, planID string, shipments int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "execute", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("plan.id", planID),
		attribute.Int("execution.planned", shipments),
	)
	return ctx, span
}

// EndExecutionSpan ends an execution span with attributes.
func (t *Tracer) EndExecutionSpan(span trace.Span, opts ExecutionSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("execution.state", opts.State),
		attribute.Int("execution.completed", opts.Completed),
		attribute.Int("execution.failed", opts.Failed),
		attribute.Int("execution.not_attempted", opts.NotAttempted),
	)
	end(span, err)
}

// --- Shipment Spans ---

// ShipmentSpanOptions describes a finished shipment.
type ShipmentSpanOptions struct {
	Attempts int
	Loads    int
}

// StartShipmentSpan starts a span for one shipment's dispatch.
func (t *Tracer) StartShipmentSpan(ctx context.Context, index int, source, destination string, vessels int64) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "shipment", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("shipment.index", index),
		attribute.String("shipment.source", source),
		attribute.String("shipment.destination", destination),
		attribute.Int64("shipment.vessels", vessels),
	)
	return ctx, span
}

// EndShipmentSpan ends a shipment span with attributes.
func (t *Tracer) EndShipmentSpan(span trace.Span, opts ShipmentSpanOptions, err error) {
	span.SetAttributes(
		attribute.Int("shipment.attempts", opts.Attempts),
		attribute.Int("shipment.loads", opts.Loads),
	)
	end(span, err)
}

// AddEvent records a point event, such as a retry or a wait, on the span
// in ctx.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the trace ID of the span in ctx, or "" if there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
