package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"barter-service/internal/gset"
	"barter-service/internal/mocks"
	"barter-service/internal/models"
	"barter-service/internal/reconcile"
)

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/transactions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugAuditWithoutEmitter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, nil, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDebugTransactionsShowsRawState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	records := new(mocks.RecordRepositoryMock)
	records.On("ReadRecord", mock.Anything, "u1").Return(models.UserRecord{Transactions: models.TransactionList{
		{ID: "T1", FromID: "u1", ToID: "u2", ConfirmedBy: gset.NewGSet("u1")},
		{ID: "T2", FromID: "u1", ToID: "u3", Deleted: true},
	}}, nil).Once()
	coordinator := reconcile.NewCoordinator(new(mocks.MessageRepositoryMock), records, new(mocks.ProductRepositoryMock), nil)

	r := gin.New()
	RegisterDebugRoutes(r, nil, coordinator, true)

	req := httptest.NewRequest(http.MethodGet, "/debug/transactions", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UserID       string               `json:"user_id"`
		Transactions []models.Transaction `json:"transactions"`
		History      []models.HistoryItem `json:"history"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Len(t, resp.Transactions, 2)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "T1", resp.History[0].ID)
	records.AssertExpectations(t)
}
