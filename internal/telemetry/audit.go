package telemetry

import (
	"context"
	"log"
	"time"

	"barter-service/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level         string   `json:"level"`
	Text          string   `json:"text"`
	Action        string   `json:"action,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
	ConfirmedBy   []string `json:"confirmed_by,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// Transaction audit actions.
const (
	ActionProposed  = "transaction_proposed"
	ActionConfirmed = "transaction_confirmed"
	ActionCompleted = "transaction_completed"
	ActionMerged    = "transaction_cross_merged"
	ActionDeleted   = "transaction_deleted"
)

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID, userID string) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: level=%s request_id=%s user_id=%s text=%q", level, requestID, userID, text)
	e.publish(ctx, e.envelope(requestID, userID, AuditPayload{Level: level, Text: text}))
}

// EmitTransaction records a state change of tx made on behalf of userID.
func (e *AuditEmitter) EmitTransaction(ctx context.Context, action, userID string, tx models.Transaction) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: action=%s user_id=%s tx=%s status=%s", action, userID, tx.Key(), tx.Status)
	e.publish(ctx, e.envelope("", userID, AuditPayload{
		Level:         "INFO",
		Text:          action,
		Action:        action,
		TransactionID: tx.Key(),
		ConfirmedBy:   tx.ConfirmedBy.Slice(),
		Status:        string(tx.Status),
	}))
}

func (e *AuditEmitter) envelope(requestID, userID string, payload AuditPayload) AuditEnvelope {
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}
}

func (e *AuditEmitter) publish(ctx context.Context, envelope AuditEnvelope) {
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
