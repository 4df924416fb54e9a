package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"barter-service/internal/events"
	"barter-service/internal/gset"
	"barter-service/internal/mocks"
	"barter-service/internal/models"
	"barter-service/internal/reconcile"
	"barter-service/internal/repositories"
	"barter-service/internal/telemetry"
	"barter-service/internal/threads"
)

var offer = models.Message{
	ID:                    "m1",
	FromID:                "u1",
	ToID:                  "u2",
	FromName:              "Ann",
	ToName:                "Bob",
	Text:                  "swap?",
	ProductID:             "p1",
	CounterOfferProductID: "p2",
	ProductTitle:          "Bike",
	IsInitialOffer:        true,
	CreatedAt:             time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

type threadDeps struct {
	messages *mocks.MessageRepositoryMock
	records  *mocks.RecordRepositoryMock
	products *mocks.ProductRepositoryMock
	auditor  *mocks.AuditorMock
	bus      *events.Bus
	events   []events.Event
}

func newThreadDeps() *threadDeps {
	d := &threadDeps{
		messages: new(mocks.MessageRepositoryMock),
		records:  new(mocks.RecordRepositoryMock),
		products: new(mocks.ProductRepositoryMock),
		auditor:  new(mocks.AuditorMock),
		bus:      events.NewBus(),
	}
	d.auditor.On("EmitTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	d.bus.Subscribe(func(_ context.Context, evt events.Event) {
		d.events = append(d.events, evt)
	})
	return d
}

func setupThreadRouter(d *threadDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	coordinator := reconcile.NewCoordinator(d.messages, d.records, d.products, d.bus, reconcile.WithAuditor(d.auditor))
	handler := NewThreadHandler(d.messages, coordinator, d.bus)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/threads", handler.ListThreads)
	r.GET("/threads/:thread_id", handler.GetThread)
	r.POST("/threads/:thread_id/confirm", handler.ConfirmThread)
	r.POST("/threads/:thread_id/read", handler.MarkThreadRead)
	r.POST("/messages", handler.PostMessage)
	r.PATCH("/messages/:message_id", handler.EditMessage)
	r.DELETE("/messages/:message_id", handler.DeleteMessage)
	r.DELETE("/transactions/:tx_key", handler.DeleteTransaction)
	return r
}

func offerThreadID() string {
	return threads.KeyFor(offer, "u1").ID()
}

func TestListThreadsSuccess(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)

	reply := models.Message{ID: "m2", FromID: "u2", ToID: "u1", Text: "maybe", ProductID: "p1", CreatedAt: offer.CreatedAt.Add(time.Minute)}
	d.messages.On("ListForUser", mock.Anything, "u1").Return([]models.Message{offer, reply}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Threads []threads.Summary `json:"threads"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Threads, 1)
	assert.Equal(t, 1, resp.Threads[0].Unread)
	assert.Equal(t, "u2", resp.Threads[0].CounterpartyID)
	d.messages.AssertExpectations(t)
}

func TestListThreadsRepoError(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("ListForUser", mock.Anything, "u1").Return(([]models.Message)(nil), assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	d.messages.AssertExpectations(t)
}

func TestGetThreadReturnsSyntheticPending(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("ListForUser", mock.Anything, "u1").Return([]models.Message{offer}, nil).Once()
	d.records.On("ReadRecord", mock.Anything, "u1").Return(models.UserRecord{}, repositories.ErrRecordNotFound)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads/"+offerThreadID(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages    []models.Message `json:"messages"`
		Transaction struct {
			Key       string `json:"key"`
			Synthetic bool   `json:"synthetic"`
			Complete  bool   `json:"complete"`
		} `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Messages, 1)
	assert.Equal(t, "pending-m1", resp.Transaction.Key)
	assert.True(t, resp.Transaction.Synthetic)
	assert.False(t, resp.Transaction.Complete)
}

func TestGetThreadUnknown(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("ListForUser", mock.Anything, "u1").Return([]models.Message{offer}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmThreadSuccess(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("ListForUser", mock.Anything, "u1").Return([]models.Message{offer}, nil).Once()
	d.messages.On("UpdateConfirmation", mock.Anything, "m1", mock.Anything, models.MessageStatusPending).Return(nil).Once()
	d.records.On("ReadRecord", mock.Anything, mock.Anything).Return(models.UserRecord{}, repositories.ErrRecordNotFound)
	d.records.On("WriteTransactions", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/threads/"+offerThreadID()+"/confirm", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "m1", resp.Transaction.ID)
	assert.Equal(t, []string{"u1"}, resp.Transaction.ConfirmedBy.Slice())
	d.records.AssertCalled(t, "WriteTransactions", mock.Anything, "u2", mock.Anything)
	d.messages.AssertExpectations(t)
	d.auditor.AssertCalled(t, "EmitTransaction", mock.Anything, telemetry.ActionConfirmed, "u1", mock.Anything)
}

func TestConfirmThreadPrimaryWriteFailure(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("ListForUser", mock.Anything, "u1").Return([]models.Message{offer}, nil).Once()
	d.records.On("ReadRecord", mock.Anything, "u1").Return(models.UserRecord{}, repositories.ErrRecordNotFound)
	d.records.On("WriteTransactions", mock.Anything, "u1", mock.Anything).Return(assert.AnError)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/threads/"+offerThreadID()+"/confirm", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	d.records.AssertNotCalled(t, "WriteTransactions", mock.Anything, "u2", mock.Anything)
}

func TestMarkThreadRead(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	reply := models.Message{ID: "m2", FromID: "u2", ToID: "u1", Text: "ok", ProductID: "p1", CreatedAt: offer.CreatedAt.Add(time.Minute)}
	d.messages.On("ListForUser", mock.Anything, "u1").Return([]models.Message{offer, reply}, nil).Once()
	d.messages.On("MarkRead", mock.Anything, "u1", []string{"m2"}).Return(nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/threads/"+offerThreadID()+"/read", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	d.messages.AssertExpectations(t)
	require.Len(t, d.events, 1)
	assert.Equal(t, events.MessagesUpdated, d.events[0].Type)
}

func TestPostMessagePlain(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.FromID == "u1" && m.ToID == "u2" && m.Text == "hi" && !m.IsInitialOffer
	})).Return(models.Message{ID: "m5", FromID: "u1", ToID: "u2", Text: "hi"}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"to_id":"u2","text":"hi"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	d.messages.AssertExpectations(t)
	require.Len(t, d.events, 1)
	assert.Equal(t, []string{"u1", "u2"}, d.events[0].UserIDs)
}

func TestPostMessageToSelf(t *testing.T) {
	router := setupThreadRouter(newThreadDeps())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"to_id":"u1","text":"hi"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostInitialOfferOpensTransaction(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.records.On("ReadRecord", mock.Anything, "u1").Return(models.UserRecord{}, repositories.ErrRecordNotFound)
	d.records.On("WriteTransactions", mock.Anything, "u1", mock.Anything).Return(nil).Once()
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.IsInitialOffer && m.ProductID == "p1"
	})).Return(models.Message{ID: "m9", FromID: "u1", ToID: "u2", ProductID: "p1", CounterOfferProductID: "p2", IsInitialOffer: true}, nil).Once()

	body := `{"to_id":"u2","text":"swap?","product_id":"p1","counter_offer_product_id":"p2","is_initial_offer":true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Transaction struct {
			ID      string `json:"id"`
			LocalID string `json:"local_id"`
		} `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "m9", resp.Transaction.ID)
	assert.True(t, models.IsTemporaryID(resp.Transaction.LocalID))
	d.records.AssertExpectations(t)
	d.messages.AssertExpectations(t)
	d.auditor.AssertCalled(t, "EmitTransaction", mock.Anything, telemetry.ActionProposed, "u1", mock.Anything)
}

func TestEditMessageNotSender(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("GetMessage", mock.Anything, "m2").Return(models.Message{ID: "m2", FromID: "u2", ToID: "u1"}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/messages/m2", bytes.NewBufferString(`{"text":"edited"}`)))

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.messages.AssertNotCalled(t, "UpdateText", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageSuccess(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("GetMessage", mock.Anything, "m1").Return(offer, nil).Once()
	d.messages.On("UpdateText", mock.Anything, "m1", "edited").Return(nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/messages/m1", bytes.NewBufferString(`{"text":"edited"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	d.messages.AssertExpectations(t)
}

func TestDeleteMessageNotFound(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	d.messages.On("GetMessage", mock.Anything, "missing").Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/messages/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTransaction(t *testing.T) {
	d := newThreadDeps()
	router := setupThreadRouter(d)
	stored := models.Transaction{ID: "T1", FromID: "u1", ToID: "u2", ConfirmedBy: gset.NewGSet()}
	d.records.On("ReadRecord", mock.Anything, "u1").Return(models.UserRecord{UserID: "u1", Transactions: models.TransactionList{stored}}, nil)
	d.records.On("WriteTransactions", mock.Anything, "u1", mock.MatchedBy(func(txs []models.Transaction) bool {
		return len(txs) == 1 && txs[0].Deleted
	})).Return(nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/transactions/T1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/transactions/T404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	d.records.AssertExpectations(t)
}
