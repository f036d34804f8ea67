package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans and metrics.
var (
	AttrRPCMethod = attribute.Key("hitl.rpc.method")
	AttrWorkspace = attribute.Key("hitl.workspace")
	AttrDecision  = attribute.Key("hitl.decision")
)

// StartServerSpan opens a span for one inbound protocol request.
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}
