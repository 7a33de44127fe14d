package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed with err. A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetStatus records the terminal status of a run or node on span, failing
// the span when failed is true.
func SetStatus(span trace.Span, status string, failed bool, message string) {
	span.SetAttributes(attribute.String(StatusKey, status))

	if failed {
		span.SetStatus(codes.Error, message)

		return
	}

	span.SetStatus(codes.Ok, "")
}
