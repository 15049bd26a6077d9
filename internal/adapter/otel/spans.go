package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "switchboard"

// StartProcessSpan starts a span covering one routed message.
func StartProcessSpan(ctx context.Context, sessionID, userID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "process",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
		),
	)
}

// StartDispatchSpan starts a span for an agent backend dispatch.
func StartDispatchSpan(ctx context.Context, agentID, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartRecallSpan starts a span for a memory recall query.
func StartRecallSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "recall",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
		),
	)
}
