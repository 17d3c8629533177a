package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName = "logstream"
	tracerName  = "logstream/engine"
)

// Attribute keys shared by tailer and loader spans
const (
	AttrFile      = attribute.Key("logstream.file")
	AttrRunID     = attribute.Key("logstream.run_id")
	AttrOffset    = attribute.Key("logstream.offset")
	AttrReloadAll = attribute.Key("logstream.reload_all")
	AttrLines     = attribute.Key("logstream.lines")
	AttrOutcome   = attribute.Key("logstream.outcome")
)

// StartSpan creates a new span for an engine operation
func StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, operationName)

	span.SetAttributes(semconv.ServiceNameKey.String(ServiceName))
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error, msg string) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s: %v", msg, err))
	} else {
		span.SetStatus(codes.Ok, msg)
	}
	span.End()
}
