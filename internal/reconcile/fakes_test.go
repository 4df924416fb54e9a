package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"barter-service/internal/gset"
	"barter-service/internal/models"
	"barter-service/internal/repositories"
)

var errStoreDown = errors.New("store unreachable")

type fakeRecords struct {
	mu        sync.Mutex
	data      map[string][]models.Transaction
	failing   map[string]bool
	writeErrs map[string][]error
	reads     map[string]int

	// afterWrite runs after every successful write, without the lock held.
	afterWrite func(userID string)
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		data:      map[string][]models.Transaction{},
		failing:   map[string]bool{},
		writeErrs: map[string][]error{},
		reads:     map[string]int{},
	}
}

func (f *fakeRecords) ReadRecord(_ context.Context, userID string) (models.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[userID]++
	txs, ok := f.data[userID]
	if !ok {
		return models.UserRecord{}, repositories.ErrRecordNotFound
	}
	return models.UserRecord{UserID: userID, Transactions: cloneAll(txs)}, nil
}

func (f *fakeRecords) WriteTransactions(_ context.Context, userID string, txs []models.Transaction) error {
	f.mu.Lock()
	if f.failing[userID] {
		f.mu.Unlock()
		return errStoreDown
	}
	if queue := f.writeErrs[userID]; len(queue) > 0 {
		f.writeErrs[userID] = queue[1:]
		if queue[0] != nil {
			f.mu.Unlock()
			return queue[0]
		}
	}
	f.data[userID] = cloneAll(txs)
	hook := f.afterWrite
	f.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
	return nil
}

func (f *fakeRecords) UpsertProfile(context.Context, string, string) error {
	return nil
}

func (f *fakeRecords) put(userID string, txs ...models.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[userID] = cloneAll(txs)
}

func (f *fakeRecords) list(userID string) []models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneAll(f.data[userID])
}

// update rewrites a stored record in place, as a writer outside the session would.
func (f *fakeRecords) update(userID string, apply func(tx *models.Transaction)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := cloneAll(f.data[userID])
	for i := range txs {
		apply(&txs[i])
	}
	f.data[userID] = txs
}

func (f *fakeRecords) setFailing(userID string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[userID] = failing
}

func cloneAll(txs []models.Transaction) []models.Transaction {
	if txs == nil {
		return nil
	}
	out := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		tx.ConfirmedBy = tx.ConfirmedBy.Clone()
		out[i] = tx
	}
	return out
}

type fakeMessages struct {
	mu      sync.Mutex
	next    int
	byID    map[string]models.Message
	created []models.Message
	mirrors map[string]gset.GSet
	failing bool
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: map[string]models.Message{}, mirrors: map[string]gset.GSet{}}
}

func (f *fakeMessages) ListForUser(_ context.Context, userID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, msg := range f.byID {
		if msg.FromID == userID || msg.ToID == userID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessages) GetMessage(_ context.Context, id string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[id]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (f *fakeMessages) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return models.Message{}, errStoreDown
	}
	if msg.ID == "" {
		f.next++
		msg.ID = fmt.Sprintf("m-%d", f.next)
	}
	if _, exists := f.byID[msg.ID]; exists {
		return models.Message{}, fmt.Errorf("duplicate message %s", msg.ID)
	}
	f.byID[msg.ID] = msg
	f.created = append(f.created, msg)
	return msg, nil
}

func (f *fakeMessages) UpdateText(context.Context, string, string) error {
	return nil
}

func (f *fakeMessages) UpdateConfirmation(_ context.Context, id string, confirmedBy gset.GSet, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrors[id] = confirmedBy.Clone()
	return nil
}

func (f *fakeMessages) DeleteMessage(context.Context, string) error {
	return nil
}

func (f *fakeMessages) MarkRead(context.Context, string, []string) error {
	return nil
}

func (f *fakeMessages) systemMessages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, msg := range f.created {
		if msg.IsSystem {
			out = append(out, msg)
		}
	}
	return out
}

type fakeProducts struct {
	mu        sync.Mutex
	exchanged map[string]int
}

func (f *fakeProducts) SetExchanged(_ context.Context, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exchanged == nil {
		f.exchanged = map[string]int{}
	}
	f.exchanged[productID]++
	return nil
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func (f *fakeRecords) readCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[userID]
}
