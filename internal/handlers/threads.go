package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"barter-service/internal/confirmation"
	"barter-service/internal/events"
	"barter-service/internal/gset"
	"barter-service/internal/matching"
	"barter-service/internal/models"
	"barter-service/internal/reconcile"
	"barter-service/internal/repositories"
	"barter-service/internal/threads"
)

// ThreadHandler serves the derived conversation threads and the messages
// and transactions behind them.
type ThreadHandler struct {
	messageRepo repositories.MessageRepository
	coordinator *reconcile.Coordinator
	bus         *events.Bus
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(messageRepo repositories.MessageRepository, coordinator *reconcile.Coordinator, bus *events.Bus) *ThreadHandler {
	return &ThreadHandler{
		messageRepo: messageRepo,
		coordinator: coordinator,
		bus:         bus,
	}
}

type transactionResponse struct {
	models.Transaction
	Key       string `json:"key"`
	Strategy  string `json:"strategy,omitempty"`
	Synthetic bool   `json:"synthetic"`
	Complete  bool   `json:"complete"`
}

func newTransactionResponse(tx models.Transaction, result *matching.Result) transactionResponse {
	resp := transactionResponse{
		Transaction: tx,
		Key:         tx.Key(),
		Complete:    confirmation.TransactionComplete(tx),
	}
	if result != nil {
		resp.Strategy = result.Strategy
		resp.Synthetic = result.Synthetic
	}
	return resp
}

// ListThreads returns the viewer's threads, newest activity first.
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	userID := c.GetString("userID")
	groups, ok := h.loadThreads(c, userID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": threads.Summaries(groups, userID)})
}

// GetThread returns a thread with its matched transaction. Viewing a thread
// reconciles the transaction with the stored records.
func (h *ThreadHandler) GetThread(c *gin.Context) {
	userID := c.GetString("userID")
	th, ok := h.findThread(c, userID)
	if !ok {
		return
	}

	resp := gin.H{
		"thread_id":         th.Key.ID(),
		"kind":              th.Key.Kind,
		"title":             th.Title(),
		"counterparty_id":   th.Key.Counterparty,
		"counterparty_name": th.CounterpartyName,
		"messages":          th.Messages,
		"unread":            threads.UnreadCount(th, userID),
	}

	result, err := h.coordinator.Session(userID).View(c.Request.Context(), th)
	switch {
	case errors.Is(err, reconcile.ErrNoAnchor):
		resp["transaction"] = nil
	case err != nil:
		status, msg := reconcileError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	default:
		resp["transaction"] = newTransactionResponse(result.Transaction, &result)
	}

	c.JSON(http.StatusOK, resp)
}

// ConfirmThread records the viewer's confirmation of the thread's transaction.
func (h *ThreadHandler) ConfirmThread(c *gin.Context) {
	userID := c.GetString("userID")
	th, ok := h.findThread(c, userID)
	if !ok {
		return
	}

	session := h.coordinator.Session(userID)
	anchor, result, err := session.Resolve(c.Request.Context(), th)
	if err != nil {
		status, msg := reconcileError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	tx, err := session.Confirm(c.Request.Context(), anchor, result.Transaction)
	if err != nil {
		status, msg := reconcileError(err)
		c.JSON(status, gin.H{"error": msg, "transaction": newTransactionResponse(tx, nil)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": newTransactionResponse(tx, nil)})
}

// MarkThreadRead sets the read marker on every message of the thread
// addressed to the viewer.
func (h *ThreadHandler) MarkThreadRead(c *gin.Context) {
	userID := c.GetString("userID")
	th, ok := h.findThread(c, userID)
	if !ok {
		return
	}

	var ids []string
	for _, msg := range th.Messages {
		if !msg.Read && gset.NormalizeID(msg.ToID) == userID {
			ids = append(ids, msg.ID)
		}
	}
	if err := h.messageRepo.MarkRead(c.Request.Context(), userID, ids); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	h.bus.Publish(c.Request.Context(), events.Event{
		Type:     events.MessagesUpdated,
		UserIDs:  []string{userID},
		ThreadID: th.Key.ID(),
	})
	c.Status(http.StatusNoContent)
}

// DeleteTransaction soft-deletes a transaction from the viewer's record.
func (h *ThreadHandler) DeleteTransaction(c *gin.Context) {
	userID := c.GetString("userID")
	tx, err := h.coordinator.Session(userID).Delete(c.Request.Context(), c.Param("tx_key"))
	if err != nil {
		status, msg := reconcileError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": newTransactionResponse(tx, nil)})
}

func (h *ThreadHandler) loadThreads(c *gin.Context, userID string) (map[threads.Key]*threads.Thread, bool) {
	msgs, err := h.messageRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return nil, false
	}
	return threads.Group(msgs, userID), true
}

func (h *ThreadHandler) findThread(c *gin.Context, userID string) (*threads.Thread, bool) {
	groups, ok := h.loadThreads(c, userID)
	if !ok {
		return nil, false
	}
	th, err := threads.Find(groups, c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return nil, false
	}
	return th, true
}

func reconcileError(err error) (int, string) {
	switch {
	case errors.Is(err, reconcile.ErrPrimaryWrite):
		return http.StatusBadGateway, "failed to save to your record"
	case errors.Is(err, reconcile.ErrNotParticipant):
		return http.StatusForbidden, "not a participant"
	case errors.Is(err, reconcile.ErrTransactionUnknown):
		return http.StatusNotFound, "transaction not found"
	case errors.Is(err, reconcile.ErrNoAnchor):
		return http.StatusConflict, "thread has no transaction"
	default:
		return http.StatusInternalServerError, "reconciliation failed"
	}
}
