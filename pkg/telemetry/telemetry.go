// Package telemetry wires OpenTelemetry tracing across the gateway's HTTP
// edge, the proxy's outbound HTTP client, and the mesh hop between them
// (SPEC_FULL.md ambient stack). Grounded on teacher's
// runtime/telemetry/provider.go (TracerProvider construction, named
// instrumentation scope) and trace_context.go (context-carried trace
// headers, detach-and-reattach across a hop boundary) — narrowed to the
// exporters already in this module's go.mod (no otlptracehttp/xray
// propagator dependency, since nothing in SPEC_FULL.md's scope talks to an
// OTLP collector or AWS X-Ray).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the OTel instrumentation scope name for every
// tracer this module creates.
const InstrumentationName = "github.com/SolaceLabs/solace-agent-mesh-core"

// NewTracerProvider creates a TracerProvider tagged with serviceName. The
// caller owns its lifecycle and must call Shutdown during process cleanup
// (spec.md §5 "Cleanup"). No span exporter is attached by default — the
// artifact/database/mesh layers this module's tests exercise don't carry a
// live OTLP collector; callers that have one register an exporter by
// passing sdktrace.WithBatcher in opts.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}
	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	return sdktrace.NewTracerProvider(allOpts...), nil
}

// Tracer returns a named tracer from tp, or the global provider if tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// SetupPropagation configures the global OTel text-map propagator to
// W3C TraceContext + Baggage, the pair every hop in this module
// (gateway HTTP, proxy outbound HTTP, mesh envelope) propagates.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// InjectIntoHeaders writes the span context carried by ctx into a
// string-keyed header carrier, for hops (like the mesh, which isn't HTTP)
// that don't have a net/http.Request to inject into directly. Grounded on
// teacher's a2a/client.go otel.GetTextMapPropagator().Inject call, widened
// from http.Header to any MapCarrier-compatible destination.
func InjectIntoHeaders(ctx context.Context, headers map[string]string) {
	carrier := propagation.MapCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractFromHeaders is InjectIntoHeaders's inverse: recovers a remote span
// context from a header map and returns a context carrying it so a new
// local span can be a child of the remote one.
func ExtractFromHeaders(ctx context.Context, headers map[string]string) context.Context {
	carrier := propagation.MapCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// DetachedWithSpan returns a background context carrying the same span
// context as ctx, for handing off a trace to a goroutine whose lifetime
// outlives the request that started it (spec.md §9's cyclic-graph note
// generalized to spans): the teacher's server/a2a/server.go does this to
// keep the conversation goroutine's trace attributed to the request that
// triggered it without tying the goroutine's cancellation to that
// request's context.
func DetachedWithSpan(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return context.Background()
	}
	return trace.ContextWithSpanContext(context.Background(), sc)
}
