package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"barter-service/internal/events"
	"barter-service/internal/models"
	"barter-service/internal/repositories"
)

// DonationHandler passes donation changes through to the donation store.
type DonationHandler struct {
	donationRepo repositories.DonationRepository
	bus          *events.Bus
}

// NewDonationHandler builds a DonationHandler.
func NewDonationHandler(donationRepo repositories.DonationRepository, bus *events.Bus) *DonationHandler {
	return &DonationHandler{donationRepo: donationRepo, bus: bus}
}

// UpdateStatus moves a donation to a new status.
func (h *DonationHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidDonationStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation status"})
		return
	}

	if err := h.donationRepo.SetDonationStatus(c.Request.Context(), c.Param("donation_id"), req.Status); err != nil {
		donationError(c, err)
		return
	}

	h.bus.Publish(c.Request.Context(), events.Event{
		Type:    events.DonationsUpdated,
		UserIDs: []string{c.GetString("userID")},
	})
	c.Status(http.StatusNoContent)
}

// Delete removes a donation.
func (h *DonationHandler) Delete(c *gin.Context) {
	if err := h.donationRepo.DeleteDonation(c.Request.Context(), c.Param("donation_id")); err != nil {
		donationError(c, err)
		return
	}

	h.bus.Publish(c.Request.Context(), events.Event{
		Type:    events.DonationsUpdated,
		UserIDs: []string{c.GetString("userID")},
	})
	c.Status(http.StatusNoContent)
}

func donationError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrDonationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "donation store failed"})
}
