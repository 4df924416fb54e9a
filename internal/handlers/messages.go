package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"barter-service/internal/events"
	"barter-service/internal/gset"
	"barter-service/internal/models"
	"barter-service/internal/repositories"
)

type postMessageRequest struct {
	ToID                     string `json:"to_id" binding:"required"`
	FromName                 string `json:"from_name"`
	ToName                   string `json:"to_name"`
	Text                     string `json:"text"`
	ProductID                string `json:"product_id"`
	CounterOfferProductID    string `json:"counter_offer_product_id"`
	ProductTitle             string `json:"product_title"`
	CounterOfferProductTitle string `json:"counter_offer_product_title"`
	DonationID               string `json:"donation_id"`
	DonationTitle            string `json:"donation_title"`
	IsInitialOffer           bool   `json:"is_initial_offer"`
}

// PostMessage stores a message. An initial offer also opens the
// transaction it proposes.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if gset.NormalizeID(req.ToID) == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	msg := models.Message{
		FromID:                   userID,
		ToID:                     gset.NormalizeID(req.ToID),
		FromName:                 req.FromName,
		ToName:                   req.ToName,
		Text:                     req.Text,
		ProductID:                req.ProductID,
		CounterOfferProductID:    req.CounterOfferProductID,
		ProductTitle:             req.ProductTitle,
		CounterOfferProductTitle: req.CounterOfferProductTitle,
		DonationID:               req.DonationID,
		DonationTitle:            req.DonationTitle,
	}

	if req.IsInitialOffer {
		if msg.ProductID == "" && msg.ProductTitle == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "an offer needs a product"})
			return
		}
		created, tx, err := h.coordinator.Session(userID).Propose(c.Request.Context(), msg)
		if err != nil && created.ID == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create offer"})
			return
		}
		if err != nil {
			status, text := reconcileError(err)
			c.JSON(status, gin.H{"error": text, "message": created, "transaction": newTransactionResponse(tx, nil)})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": created, "transaction": newTransactionResponse(tx, nil)})
		return
	}

	created, err := h.messageRepo.CreateMessage(c.Request.Context(), msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create message"})
		return
	}

	h.bus.Publish(c.Request.Context(), events.Event{
		Type:    events.MessagesUpdated,
		UserIDs: []string{userID, created.ToID},
	})
	c.JSON(http.StatusCreated, gin.H{"message": created})
}

// EditMessage replaces the text of one of the viewer's own messages.
func (h *ThreadHandler) EditMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, ok := h.ownMessage(c)
	if !ok {
		return
	}
	if err := h.messageRepo.UpdateText(c.Request.Context(), msg.ID, req.Text); err != nil {
		h.messageError(c, err)
		return
	}
	msg.Text = req.Text

	h.bus.Publish(c.Request.Context(), events.Event{
		Type:    events.MessagesUpdated,
		UserIDs: []string{msg.FromID, msg.ToID},
	})
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage removes one of the viewer's own messages for both parties.
func (h *ThreadHandler) DeleteMessage(c *gin.Context) {
	msg, ok := h.ownMessage(c)
	if !ok {
		return
	}
	if err := h.messageRepo.DeleteMessage(c.Request.Context(), msg.ID); err != nil {
		h.messageError(c, err)
		return
	}

	h.bus.Publish(c.Request.Context(), events.Event{
		Type:    events.MessagesUpdated,
		UserIDs: []string{msg.FromID, msg.ToID},
	})
	c.Status(http.StatusNoContent)
}

func (h *ThreadHandler) ownMessage(c *gin.Context) (models.Message, bool) {
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		h.messageError(c, err)
		return models.Message{}, false
	}
	if msg.IsSystem || gset.NormalizeID(msg.FromID) != c.GetString("userID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the sender"})
		return models.Message{}, false
	}
	return msg, true
}

func (h *ThreadHandler) messageError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "message store failed"})
}
