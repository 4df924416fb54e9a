package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"barter-service/internal/gset"
	"barter-service/internal/mocks"
	"barter-service/internal/models"
)

func TestEmitTransactionPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "audit.barter", "barter-service", "test")

	var got AuditEnvelope
	pub.On("Publish", mock.Anything, "audit.barter", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	tx := models.Transaction{ID: "t1", FromID: "u1", ToID: "u2", Status: models.StatusCompleted, ConfirmedBy: gset.NewGSet("u2", "u1")}
	emitter.EmitTransaction(context.Background(), ActionCompleted, "u2", tx)

	pub.AssertExpectations(t)
	require.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, "u2", got.UserID)
	assert.Equal(t, "t1", got.Payload.TransactionID)
	assert.Equal(t, []string{"u1", "u2"}, got.Payload.ConfirmedBy)
	assert.Equal(t, "completed", got.Payload.Status)
}

func TestEmitIgnoresPublishError(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "audit.barter", "barter-service", "test")
	pub.On("Publish", mock.Anything, "audit.barter", mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "audit test", "req-1", "u1")
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.EmitTransaction(context.Background(), ActionConfirmed, "u1", models.Transaction{})
	})
}
