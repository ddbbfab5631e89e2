package messaging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectHeader writes the trace context of ctx into a fresh header map.
// It returns nil when there is nothing to propagate.
func InjectHeader(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}

// ContextFromMessage restores the trace context carried by msg on top of ctx.
func ContextFromMessage(ctx context.Context, msg Message) context.Context {
	if len(msg.Header) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Header))
}
