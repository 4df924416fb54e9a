// Package reconcile drives a transaction's confirmation set to convergence
// across the two participants' independent records.
//
// Each viewer gets a Session holding their optimistic copy of every
// transaction. Sessions only ever add confirmations, so a stale or repeated
// pass can waste a write but never undo one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"barter-service/internal/events"
	"barter-service/internal/gset"
	"barter-service/internal/matching"
	"barter-service/internal/models"
	"barter-service/internal/observability"
	"barter-service/internal/repositories"
	"barter-service/internal/telemetry"
)

var (
	// ErrPrimaryWrite means the viewer's own record could not be updated.
	// Optimistic local state is kept; the next view re-reconciles.
	ErrPrimaryWrite       = errors.New("primary record write failed")
	ErrNotParticipant     = errors.New("user is not a participant")
	ErrNoAnchor           = errors.New("thread has no anchor message")
	ErrTransactionUnknown = errors.New("transaction not found")
)

var tracer = otel.Tracer("barter-service/reconcile")

// Auditor records transaction state changes.
type Auditor interface {
	EmitTransaction(ctx context.Context, action, userID string, tx models.Transaction)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator overrides the generator used for temporary and fallback ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) Option {
	return func(c *Coordinator) { c.audit = a }
}

// WithMatcher replaces the default strategy list.
func WithMatcher(m *matching.Matcher) Option {
	return func(c *Coordinator) { c.matcher = m }
}

// Coordinator owns the shared stores and hands out one Session per viewer.
type Coordinator struct {
	messages repositories.MessageRepository
	records  repositories.RecordRepository
	products repositories.ProductRepository
	bus      *events.Bus
	audit    Auditor
	matcher  *matching.Matcher
	now      func() time.Time
	newID    func() string

	mu          sync.Mutex
	sessions    map[string]*Session
	recordLocks map[string]*sync.Mutex
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(messages repositories.MessageRepository, records repositories.RecordRepository, products repositories.ProductRepository, bus *events.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		messages:    messages,
		records:     records,
		products:    products,
		bus:         bus,
		matcher:     matching.New(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		sessions:    make(map[string]*Session),
		recordLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the viewer's session, creating it on first use.
func (c *Coordinator) Session(userID string) *Session {
	id := gset.NormalizeID(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		s = newSession(c, id)
		c.sessions[id] = s
	}
	return s
}

func (c *Coordinator) recordLock(userID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.recordLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		c.recordLocks[userID] = l
	}
	return l
}

// readTransactions returns the user's stored transactions. A user without
// a record has none.
func (c *Coordinator) readTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	rec, err := c.records.ReadRecord(ctx, userID)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Transactions, nil
}

// updateRecord performs a read-merge-write of the user's whole transaction
// collection. Writers in this process are serialized per record; writers
// elsewhere are not, which the monotonic merge tolerates.
func (c *Coordinator) updateRecord(ctx context.Context, userID string, apply func([]models.Transaction) []models.Transaction) ([]models.Transaction, error) {
	l := c.recordLock(userID)
	l.Lock()
	defer l.Unlock()

	current, err := c.readTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", userID, err)
	}
	next := apply(current)
	if err := c.records.WriteTransactions(ctx, userID, next); err != nil {
		return nil, fmt.Errorf("write record %s: %w", userID, err)
	}
	return next, nil
}

func (c *Coordinator) publish(ctx context.Context, eventType string, tx models.Transaction, userIDs ...string) {
	c.bus.Publish(ctx, events.Event{
		Type:          eventType,
		UserIDs:       userIDs,
		TransactionID: tx.Key(),
		OccurredAt:    c.now(),
	})
}

func (c *Coordinator) emit(ctx context.Context, action, userID string, tx models.Transaction) {
	if c.audit == nil {
		return
	}
	c.audit.EmitTransaction(ctx, action, userID, tx)
}

// completionMessageID is deterministic so that both parties reaching
// completion independently announce it once.
func completionMessageID(tx models.Transaction) string {
	return "completion-" + tx.Key()
}

// complete runs the side effects of a transaction reaching completion.
// Failures are logged; the transaction stays complete regardless.
func (c *Coordinator) complete(ctx context.Context, actorID string, anchor models.Message, tx models.Transaction) {
	ctx, span := tracer.Start(ctx, "reconcile.complete")
	defer span.End()

	counterparty := tx.Counterparty(actorID)
	msgID := completionMessageID(tx)
	if _, err := c.messages.GetMessage(ctx, msgID); errors.Is(err, repositories.ErrMessageNotFound) {
		_, err := c.messages.CreateMessage(ctx, models.Message{
			ID:                       msgID,
			FromID:                   actorID,
			ToID:                     counterparty,
			FromName:                 nameFor(anchor, actorID),
			ToName:                   nameFor(anchor, counterparty),
			Text:                     "Exchange completed",
			CreatedAt:                c.now(),
			ProductID:                anchor.ProductID,
			CounterOfferProductID:    anchor.CounterOfferProductID,
			ProductTitle:             anchor.ProductTitle,
			CounterOfferProductTitle: anchor.CounterOfferProductTitle,
			DonationID:               anchor.DonationID,
			DonationTitle:            anchor.DonationTitle,
			ConfirmedBy:              tx.ConfirmedBy.Clone(),
			Status:                   models.MessageStatusCompleted,
			IsSystem:                 true,
		})
		if err != nil {
			log.Printf("reconcile: system message failed tx=%s user=%s: %v", tx.Key(), actorID, err)
		}
	} else if err != nil {
		log.Printf("reconcile: system message lookup failed tx=%s user=%s: %v", tx.Key(), actorID, err)
	}

	for _, productID := range []string{tx.OfferedProductID, tx.RequestedProductID} {
		if productID == "" {
			continue
		}
		if err := c.products.SetExchanged(ctx, productID); err != nil {
			log.Printf("reconcile: mark product exchanged failed product=%s tx=%s: %v", productID, tx.Key(), err)
		}
	}

	observability.IncCompletion()
	c.emit(ctx, telemetry.ActionCompleted, actorID, tx)
	c.publish(ctx, events.ProductsUpdated, tx, actorID, counterparty)
	c.publish(ctx, events.MessagesUpdated, tx, actorID, counterparty)
}

func nameFor(msg models.Message, userID string) string {
	switch gset.NormalizeID(userID) {
	case gset.NormalizeID(msg.FromID):
		return msg.FromName
	case gset.NormalizeID(msg.ToID):
		return msg.ToName
	}
	return ""
}

// mirror copies the confirmation state onto the anchor message so that
// message-only clients see it.
func (c *Coordinator) mirror(ctx context.Context, anchor models.Message, tx models.Transaction) {
	if anchor.ID == "" {
		return
	}
	status := models.MessageStatusPending
	if tx.Status == models.StatusCompleted {
		status = models.MessageStatusCompleted
	}
	if err := c.messages.UpdateConfirmation(ctx, anchor.ID, tx.ConfirmedBy, status); err != nil {
		log.Printf("reconcile: mirror confirmation failed message=%s tx=%s: %v", anchor.ID, tx.Key(), err)
	}
}
