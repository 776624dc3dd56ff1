package core

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fluxorio/eventa/pkg/core"

// tracer is looked up on every use so a provider installed after start-up
// still receives spans
func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func invokeAttributes(bundle, invokeID string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("eventa.bundle", bundle),
		attribute.String("eventa.invoke_id", invokeID),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
