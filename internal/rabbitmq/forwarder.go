package rabbitmq

import (
	"context"
	"log"

	"barter-service/internal/events"
	"barter-service/internal/observability"
)

const eventsRoutingPrefix = "barter.events."

// RoutingKey returns the topic routing key for a domain event type.
func RoutingKey(eventType string) string {
	return eventsRoutingPrefix + eventType
}

// Forward returns a bus handler that republishes every domain event on the
// broker. Publish failures are counted and dropped.
func Forward(p Publisher) events.Handler {
	return func(ctx context.Context, evt events.Event) {
		envelope := observability.NewEventEnvelope(ctx, observability.EnvelopeBarterEvents, evt.Type, evt)
		if err := p.Publish(ctx, RoutingKey(evt.Type), envelope); err != nil {
			observability.IncAMQPPublishError()
			log.Printf("event forward failed type=%s tx=%s: %v", evt.Type, evt.TransactionID, err)
		}
	}
}
