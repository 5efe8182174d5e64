package stm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in exported traces.
const tracerName = "github.com/jad-hamza/vscoq/stm"

// tracer returns the package-wide Tracer, resolved lazily from the
// global otel.TracerProvider so callers aren't forced to thread one
// through the Controller explicitly (the common case has one provider
// per process, configured in cmd/stmctl).
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startSpan opens a span for a controller operation and tags it with
// the operation name; callers defer span.End() and call recordErr on
// their named return error.
func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, "stm."+op, trace.WithAttributes(attrs...))
}

// recordErr annotates span with err if non-nil, following the
// standard otel convention of setting both an exception event and the
// span's status code.
func recordErr(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
