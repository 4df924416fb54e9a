package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"barter-service/internal/confirmation"
	"barter-service/internal/events"
	"barter-service/internal/gset"
	"barter-service/internal/matching"
	"barter-service/internal/models"
	"barter-service/internal/observability"
	"barter-service/internal/telemetry"
	"barter-service/internal/threads"
)

// Observer receives a snapshot of the session's transactions after every
// local change. It runs with the session locked and must not call back
// into the session.
type Observer func(transactions []models.Transaction)

// Session is one viewer's optimistic view of their transactions. Its
// operations are serialized, so two steps of one viewer's reconciliation
// never interleave.
type Session struct {
	c      *Coordinator
	userID string

	mu           sync.Mutex
	local        []models.Transaction
	loaded       bool
	crossMerged  map[string]bool
	observers    map[int]Observer
	nextObserver int
}

func newSession(c *Coordinator, userID string) *Session {
	return &Session{
		c:           c,
		userID:      userID,
		crossMerged: make(map[string]bool),
		observers:   make(map[int]Observer),
	}
}

// UserID returns the normalized viewer id.
func (s *Session) UserID() string {
	return s.userID
}

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Transactions catches up with the viewer's stored record and returns the
// local transactions. Confirmations the counterparty wrote into the record
// are merged in; local optimistic entries are kept.
func (s *Session) Transactions(ctx context.Context) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync(ctx)
	return s.snapshot()
}

// Resolve returns the thread's anchor and the transaction it refers to.
func (s *Session) Resolve(ctx context.Context, th *threads.Thread) (models.Message, matching.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return s.resolve(th)
}

// Confirm records the viewer's confirmation of tx, the transaction matched
// for anchor. Steps run in order: stabilize the id, apply the confirmation
// locally, write the viewer's record, write the counterparty's record,
// announce completion, then re-read the viewer's record.
//
// Only a failure to write the viewer's own record is returned, wrapped in
// ErrPrimaryWrite. Local state is never rolled back.
func (s *Session) Confirm(ctx context.Context, anchor models.Message, tx models.Transaction) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	ctx, span := tracer.Start(ctx, "reconcile.confirm", trace.WithAttributes(
		attribute.String("barter.user_id", s.userID),
		attribute.String("barter.transaction", tx.Key()),
	))
	defer span.End()

	if !tx.IsParticipant(s.userID) {
		return models.Transaction{}, ErrNotParticipant
	}
	if tx.ConfirmedBy.Has(s.userID) && confirmation.TransactionComplete(tx) {
		return tx, nil
	}
	prev := tx
	wasComplete := confirmation.TransactionComplete(tx)
	counterparty := tx.Counterparty(s.userID)

	if !tx.HasStableID() {
		stable := tx
		stable.ID = s.stableIDFor(anchor, tx)
		stable.UpdatedAt = s.c.now()
		if _, err := s.c.updateRecord(ctx, s.userID, func(list []models.Transaction) []models.Transaction {
			return fold(list, stable, prev)
		}); err != nil {
			return s.primaryFailure(span, "stabilize", tx, err)
		}
		s.setLocal(fold(s.local, stable, prev))
		tx = stable
	}

	confirmed := confirmation.AddSelfConfirmation(tx, s.userID)
	confirmed.UpdatedAt = s.c.now()
	s.setLocal(fold(s.local, confirmed, prev))

	own, err := s.c.updateRecord(ctx, s.userID, func(list []models.Transaction) []models.Transaction {
		return fold(list, confirmed, prev)
	})
	if err != nil {
		return s.primaryFailure(span, "confirm", confirmed, err)
	}
	if stored, ok := find(own, confirmed); ok {
		confirmed = stored
	}

	theirs, err := s.c.updateRecord(ctx, counterparty, func(list []models.Transaction) []models.Transaction {
		return fold(list, confirmed, s.counterpartyAliases(anchor, list, confirmed, prev)...)
	})
	if err != nil {
		observability.IncCounterpartyWriteFailure()
		log.Printf("reconcile: counterparty write failed tx=%s user=%s counterparty=%s: %v", confirmed.Key(), s.userID, counterparty, err)
	} else if stored, ok := find(theirs, confirmed); ok {
		confirmed = confirmation.MergeTransaction(confirmed, stored)
	}
	s.setLocal(fold(s.local, confirmed, prev))
	s.c.mirror(ctx, anchor, confirmed)

	completed := !wasComplete && confirmation.TransactionComplete(confirmed)
	if completed {
		s.c.complete(ctx, s.userID, anchor, confirmed)
	}

	s.refresh(ctx, confirmed)

	current, _ := find(s.local, confirmed)
	// the re-read can carry a confirmation written concurrently
	if !wasComplete && !completed && confirmation.TransactionComplete(current) {
		s.c.complete(ctx, s.userID, anchor, current)
	}
	span.SetAttributes(attribute.String("barter.status", string(current.Status)))
	observability.IncReconcilePass("confirm", "ok")
	s.c.emit(ctx, telemetry.ActionConfirmed, s.userID, current)
	s.c.publish(ctx, events.ProfileUpdated, current, s.userID, counterparty)
	return current, nil
}

// PassiveReconcile catches the viewer up with their own stored record when
// the thread's transaction is not yet complete. Local state is replaced by
// the record, not merged with it.
func (s *Session) PassiveReconcile(ctx context.Context, th *threads.Thread) (matching.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return s.passive(ctx, th)
}

// CrossMergeReconcile pulls the counterparty's confirmation from their
// record when the viewer has confirmed but completion is not visible yet.
// A pass that merged is not repeated for the transaction. A pass that found
// nothing to merge, or could not read the counterparty record, runs again
// on the next view.
func (s *Session) CrossMergeReconcile(ctx context.Context, th *threads.Thread) (matching.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return s.crossMerge(ctx, th)
}

// View reconciles a thread that just became visible: a passive pass, then
// a cross-merge pass when the viewer is still waiting on the counterparty.
func (s *Session) View(ctx context.Context, th *threads.Thread) (matching.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	if _, err := s.passive(ctx, th); err != nil {
		return matching.Result{}, err
	}
	return s.crossMerge(ctx, th)
}

// Propose sends an initial offer and records the transaction it opens.
// The transaction is visible locally under a temporary id at once and is
// stabilized under the offer message id once the message exists.
func (s *Session) Propose(ctx context.Context, draft models.Message) (models.Message, models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	ctx, span := tracer.Start(ctx, "reconcile.propose", trace.WithAttributes(attribute.String("barter.user_id", s.userID)))
	defer span.End()

	if draft.FromID == "" {
		draft.FromID = s.userID
	}
	if gset.NormalizeID(draft.FromID) != s.userID || draft.ToID == "" || gset.NormalizeID(draft.ToID) == s.userID {
		return models.Message{}, models.Transaction{}, ErrNotParticipant
	}
	draft.IsInitialOffer = true
	if draft.Status == "" {
		draft.Status = models.MessageStatusPending
	}

	now := s.c.now()
	optimistic := models.Transaction{
		LocalID:               models.LocalPrefix + s.c.newID(),
		Kind:                  models.KindExchange,
		FromID:                draft.FromID,
		ToID:                  draft.ToID,
		OfferedProductID:      draft.CounterOfferProductID,
		OfferedProductTitle:   draft.CounterOfferProductTitle,
		RequestedProductID:    draft.ProductID,
		RequestedProductTitle: draft.ProductTitle,
		Status:                models.StatusPendingConfirmation,
		ConfirmedBy:           gset.NewGSet(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.setLocal(fold(s.local, optimistic))

	msg, err := s.c.messages.CreateMessage(ctx, draft)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, optimistic, fmt.Errorf("create offer message: %w", err)
	}

	stable := optimistic
	stable.ID = msg.ID
	stable.UpdatedAt = s.c.now()
	s.setLocal(fold(s.local, stable))
	if _, err := s.c.updateRecord(ctx, s.userID, func(list []models.Transaction) []models.Transaction {
		return fold(list, stable)
	}); err != nil {
		_, err = s.primaryFailure(span, "propose", stable, err)
		return msg, stable, err
	}

	s.c.emit(ctx, telemetry.ActionProposed, s.userID, stable)
	s.c.publish(ctx, events.MessagesUpdated, stable, s.userID, msg.ToID)
	s.c.publish(ctx, events.ProfileUpdated, stable, s.userID)
	return msg, stable, nil
}

// Delete soft-deletes the transaction with the given stable or temporary
// id from the viewer's record. Records are never hard-removed.
func (s *Session) Delete(ctx context.Context, key string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	var tx models.Transaction
	found := false
	for _, candidate := range s.local {
		if candidate.Key() == key || candidate.ID == key || (candidate.LocalID != "" && candidate.LocalID == key) {
			tx, found = candidate, true
			break
		}
	}
	if !found {
		return models.Transaction{}, ErrTransactionUnknown
	}

	deleted := tx
	deleted.Deleted = true
	deleted.UpdatedAt = s.c.now()
	s.setLocal(fold(s.local, deleted))
	if _, err := s.c.updateRecord(ctx, s.userID, func(list []models.Transaction) []models.Transaction {
		return fold(list, deleted)
	}); err != nil {
		log.Printf("reconcile: delete failed tx=%s user=%s: %v", key, s.userID, err)
		return deleted, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
	}

	s.c.emit(ctx, telemetry.ActionDeleted, s.userID, deleted)
	s.c.publish(ctx, events.ProfileUpdated, deleted, s.userID)
	return deleted, nil
}

func (s *Session) passive(ctx context.Context, th *threads.Thread) (matching.Result, error) {
	anchor, result, err := s.resolve(th)
	if err != nil {
		return result, err
	}
	if confirmation.TransactionComplete(result.Transaction) {
		observability.IncReconcilePass("passive", "skipped")
		return result, nil
	}

	ctx, span := tracer.Start(ctx, "reconcile.passive", trace.WithAttributes(
		attribute.String("barter.user_id", s.userID),
		attribute.String("barter.transaction", result.Transaction.Key()),
	))
	defer span.End()

	txs, err := s.c.readTransactions(ctx, s.userID)
	if err != nil {
		span.RecordError(err)
		observability.IncReconcilePass("passive", "error")
		log.Printf("reconcile: passive read failed user=%s: %v", s.userID, err)
		return result, nil
	}
	s.loaded = true
	s.setLocal(append([]models.Transaction(nil), txs...))
	observability.IncReconcilePass("passive", "ok")
	return s.match(anchor), nil
}

func (s *Session) crossMerge(ctx context.Context, th *threads.Thread) (matching.Result, error) {
	anchor, result, err := s.resolve(th)
	if err != nil {
		return result, err
	}
	tx := result.Transaction
	if confirmation.TransactionComplete(tx) || !tx.ConfirmedBy.Has(s.userID) {
		return result, nil
	}
	key := tx.Key()
	if s.crossMerged[key] {
		return result, nil
	}

	ctx, span := tracer.Start(ctx, "reconcile.cross_merge", trace.WithAttributes(
		attribute.String("barter.user_id", s.userID),
		attribute.String("barter.transaction", key),
	))
	defer span.End()

	counterparty := tx.Counterparty(s.userID)
	theirTxs, err := s.c.readTransactions(ctx, counterparty)
	if err != nil {
		span.RecordError(err)
		observability.IncReconcilePass("cross_merge", "error")
		log.Printf("reconcile: counterparty read failed tx=%s user=%s counterparty=%s: %v", key, s.userID, counterparty, err)
		return result, nil
	}
	theirs := s.c.matcher.Match(anchor, theirTxs)
	if theirs.Synthetic || !theirs.Transaction.ConfirmedBy.Has(counterparty) {
		observability.IncReconcilePass("cross_merge", "nothing")
		return result, nil
	}
	s.crossMerged[key] = true

	merged := confirmation.MergeTransaction(tx, theirs.Transaction)
	merged.UpdatedAt = s.c.now()
	s.setLocal(fold(s.local, merged, tx, theirs.Transaction))

	if _, err := s.c.updateRecord(ctx, s.userID, func(list []models.Transaction) []models.Transaction {
		return fold(list, merged, tx, theirs.Transaction)
	}); err != nil {
		span.RecordError(err)
		log.Printf("reconcile: cross-merge own write failed tx=%s user=%s: %v", key, s.userID, err)
	}
	if _, err := s.c.updateRecord(ctx, counterparty, func(list []models.Transaction) []models.Transaction {
		return fold(list, merged, tx, theirs.Transaction)
	}); err != nil {
		observability.IncCounterpartyWriteFailure()
		log.Printf("reconcile: cross-merge counterparty write failed tx=%s counterparty=%s: %v", key, counterparty, err)
	}
	s.c.mirror(ctx, anchor, merged)

	if confirmation.TransactionComplete(merged) {
		s.c.complete(ctx, s.userID, anchor, merged)
	}
	observability.IncReconcilePass("cross_merge", "merged")
	s.c.emit(ctx, telemetry.ActionMerged, s.userID, merged)
	s.c.publish(ctx, events.ProfileUpdated, merged, s.userID, counterparty)
	return s.match(anchor), nil
}

// counterpartyAliases finds the counterparty's copy of tx when it was
// stored under another id, so that their record converges on ours.
func (s *Session) counterpartyAliases(anchor models.Message, list []models.Transaction, tx, prev models.Transaction) []models.Transaction {
	aliases := []models.Transaction{prev}
	if _, ok := find(list, tx); ok {
		return aliases
	}
	if r := s.c.matcher.Match(anchor, list); !r.Synthetic {
		aliases = append(aliases, r.Transaction)
	}
	return aliases
}

// refresh re-reads the viewer's record and merges its copy of tx back in.
// When the local copy carries confirmations the record lacks, they are
// written back.
func (s *Session) refresh(ctx context.Context, tx models.Transaction) {
	txs, err := s.c.readTransactions(ctx, s.userID)
	if err != nil {
		log.Printf("reconcile: re-read failed tx=%s user=%s: %v", tx.Key(), s.userID, err)
		return
	}
	remote, ok := find(txs, tx)
	if !ok {
		return
	}
	local, ok := find(s.local, tx)
	if !ok {
		local = tx
	}
	merged := confirmation.MergeTransaction(local, remote)
	s.setLocal(fold(s.local, merged))
	if merged.ConfirmedBy.Equal(remote.ConfirmedBy) && merged.Status == remote.Status {
		return
	}
	if _, err := s.c.updateRecord(ctx, s.userID, func(list []models.Transaction) []models.Transaction {
		return fold(list, merged)
	}); err != nil {
		log.Printf("reconcile: write-back failed tx=%s user=%s: %v", tx.Key(), s.userID, err)
	}
}

func (s *Session) resolve(th *threads.Thread) (models.Message, matching.Result, error) {
	if th == nil {
		return models.Message{}, matching.Result{}, ErrNoAnchor
	}
	anchor, ok := th.Anchor()
	if !ok {
		return models.Message{}, matching.Result{}, ErrNoAnchor
	}
	if me := s.userID; gset.NormalizeID(anchor.FromID) != me && gset.NormalizeID(anchor.ToID) != me {
		return anchor, matching.Result{}, ErrNotParticipant
	}
	return anchor, s.match(anchor), nil
}

func (s *Session) match(anchor models.Message) matching.Result {
	result := s.c.matcher.Match(anchor, s.local)
	observability.IncMatchStrategy(result.Strategy)
	return result
}

// stableIDFor derives the id assigned at stabilization. Both parties
// stabilize from the same anchor message, so they agree on the id without
// coordinating.
func (s *Session) stableIDFor(anchor models.Message, tx models.Transaction) string {
	id := anchor.ID
	if id == "" || models.IsTemporaryID(id) {
		return s.c.newID()
	}
	for _, existing := range s.local {
		if existing.ID == id && !existing.SameIdentity(tx) {
			return s.c.newID()
		}
	}
	return id
}

func (s *Session) primaryFailure(span trace.Span, step string, tx models.Transaction, err error) (models.Transaction, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	observability.IncReconcilePass(step, "primary_write_failed")
	log.Printf("reconcile: %s write failed tx=%s user=%s: %v", step, tx.Key(), s.userID, err)
	current, ok := find(s.local, tx)
	if !ok {
		current = tx
	}
	return current, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
}

// load reads the viewer's record on first use.
func (s *Session) load(ctx context.Context) {
	if s.loaded {
		return
	}
	s.sync(ctx)
}

// sync merges the viewer's stored record into local state. Optimistic
// entries created while the store was unreachable are kept.
func (s *Session) sync(ctx context.Context) {
	txs, err := s.c.readTransactions(ctx, s.userID)
	if err != nil {
		log.Printf("reconcile: load record failed user=%s: %v", s.userID, err)
		return
	}
	s.loaded = true
	if len(txs) == 0 {
		return
	}
	list := s.local
	for _, tx := range txs {
		list = confirmation.Upsert(list, tx)
	}
	s.setLocal(list)
}

func (s *Session) setLocal(list []models.Transaction) {
	s.local = list
	if len(s.observers) == 0 {
		return
	}
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.observers[id](s.snapshot())
	}
}

func (s *Session) snapshot() []models.Transaction {
	out := make([]models.Transaction, len(s.local))
	copy(out, s.local)
	return out
}

// find returns the copy of tx in list.
func find(list []models.Transaction, tx models.Transaction) (models.Transaction, bool) {
	for _, existing := range list {
		if existing.SameIdentity(tx) {
			return existing, true
		}
	}
	return models.Transaction{}, false
}

// fold merges tx and every copy of it in list into a single entry at the
// position of the first copy. aliases are earlier identities of tx, such as
// the temporary copy it was stabilized from.
func fold(list []models.Transaction, tx models.Transaction, aliases ...models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(list)+1)
	merged := tx
	pos := -1
	for _, existing := range list {
		if !sameAs(existing, tx, aliases) {
			out = append(out, existing)
			continue
		}
		merged = confirmation.MergeTransaction(merged, existing)
		if pos < 0 {
			pos = len(out)
			out = append(out, models.Transaction{})
		}
	}
	if pos < 0 {
		return append(out, merged)
	}
	out[pos] = merged
	return out
}

func sameAs(existing, tx models.Transaction, aliases []models.Transaction) bool {
	if existing.SameIdentity(tx) {
		return true
	}
	for _, alias := range aliases {
		if existing.SameIdentity(alias) {
			return true
		}
	}
	return false
}
