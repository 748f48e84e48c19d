package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

// StartCommandSpan creates a span for a CLI command execution.
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "auth login")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartRequestSpan creates a client span for one pipeline request.
func StartRequestSpan(ctx context.Context, method, endpoint string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("api")
	ctx, span := tracer.Start(ctx, "api."+method+" "+endpoint, trace.WithSpanKind(trace.SpanKindClient))

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("api.endpoint", endpoint),
		attribute.String("component", "api"),
	)

	return ctx, span
}

// StartSessionSpan creates a span for a session lifecycle operation such as
// bootstrap or login.
func StartSessionSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("session")
	ctx, span := tracer.Start(ctx, "session."+operation)

	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.String("component", "session"),
	)

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status. Coded errors
// also tag the span with their error code.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("error", true))

	if sbErr, ok := errors.As(err); ok {
		span.SetAttributes(attribute.String("error.code", string(sbErr.Code)))
		if sbErr.Status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", sbErr.Status))
		}
	}
}
