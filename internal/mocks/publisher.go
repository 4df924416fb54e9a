package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"barter-service/internal/models"
)

// PublisherMock stands in for the broker publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RoutingKeys lists the routing keys of every Publish call, in order.
func (m *PublisherMock) RoutingKeys() []string {
	var keys []string
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			keys = append(keys, call.Arguments.String(1))
		}
	}
	return keys
}

// AuditorMock records transaction audit actions.
type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) EmitTransaction(ctx context.Context, action, userID string, tx models.Transaction) {
	m.Called(ctx, action, userID, tx)
}
