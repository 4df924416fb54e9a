package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"barter-service/internal/history"
	"barter-service/internal/models"
	"barter-service/internal/reconcile"
	"barter-service/internal/repositories"
)

// HistoryHandler serves the combined exchange and donation history.
type HistoryHandler struct {
	coordinator  *reconcile.Coordinator
	donationRepo repositories.DonationRepository
}

// NewHistoryHandler builds a HistoryHandler.
func NewHistoryHandler(coordinator *reconcile.Coordinator, donationRepo repositories.DonationRepository) *HistoryHandler {
	return &HistoryHandler{coordinator: coordinator, donationRepo: donationRepo}
}

// GetHistory returns the viewer's history, newest first.
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	userID := c.GetString("userID")
	txs := h.coordinator.Session(userID).Transactions(c.Request.Context())

	donations, err := h.donationRepo.ListDonations(c.Request.Context(), models.DonationFilter{
		ParticipantID: userID,
		Status:        models.DonationDelivered,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load donations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history.Aggregate(txs, donations)})
}
