package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(func(ctx context.Context, evt Event) { got = append(got, "a:"+evt.Type) })
	bus.Subscribe(func(ctx context.Context, evt Event) { got = append(got, "b:"+evt.Type) })

	bus.Publish(context.Background(), Event{Type: ProfileUpdated})

	assert.Equal(t, []string{"a:profile_updated", "b:profile_updated"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	cancel := bus.Subscribe(func(ctx context.Context, evt Event) { calls++ })

	bus.Publish(context.Background(), Event{Type: ProductsUpdated})
	cancel()
	bus.Publish(context.Background(), Event{Type: ProductsUpdated})

	assert.Equal(t, 1, calls)
}

func TestPublishStampsTime(t *testing.T) {
	bus := NewBus()
	var seen Event
	bus.Subscribe(func(ctx context.Context, evt Event) { seen = evt })

	bus.Publish(context.Background(), Event{Type: DonationsUpdated})

	assert.False(t, seen.OccurredAt.IsZero())
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(context.Background(), Event{Type: MessagesUpdated}) })
}
