package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Envelope event types.
const (
	EnvelopeBarterEvents = "barter_events"
	EnvelopeWSEvents     = "ws_events"
)

// EventEnvelope wraps every non-audit message published to the broker.
type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	TraceID   string `json:"trace_id,omitempty"`
	Payload   any    `json:"payload"`
}

// NewEventEnvelope builds an envelope carrying the trace id of ctx, if any.
func NewEventEnvelope(ctx context.Context, eventType, eventName string, payload any) EventEnvelope {
	envelope := EventEnvelope{EventType: eventType, EventName: eventName, Payload: payload}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}
	return envelope
}
