package models

import "time"

// Donation statuses.
const (
	DonationAvailable = "available"
	DonationReserved  = "reserved"
	DonationDelivered = "delivered"
	DonationRemoved   = "removed"
)

// ValidDonationStatus reports whether status is a known donation status.
func ValidDonationStatus(status string) bool {
	switch status {
	case DonationAvailable, DonationReserved, DonationDelivered, DonationRemoved:
		return true
	}
	return false
}

// Donation is a one-sided handoff owned by its donor.
type Donation struct {
	ID           string     `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	DonorID      string     `db:"donor_id" json:"donor_id"`
	RecipientID  string     `db:"recipient_id" json:"recipient_id,omitempty"`
	Status       string     `db:"status" json:"status"`
	DeliveryDate *time.Time `db:"delivery_date" json:"delivery_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// DonationFilter narrows a donation listing. Empty fields match anything.
type DonationFilter struct {
	ParticipantID string
	Status        string
}

// Product statuses.
const (
	ProductAvailable = "available"
	ProductExchanged = "exchanged"
)

// Product is a listed item that can be bartered.
type Product struct {
	ID      string `db:"id" json:"id"`
	OwnerID string `db:"owner_id" json:"owner_id"`
	Title   string `db:"title" json:"title"`
	Status  string `db:"status" json:"status"`
}

// HistoryItem is one entry of the combined exchange/donation history.
type HistoryItem struct {
	Kind           string    `json:"kind"`
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	OfferedTitle   string    `json:"offered_title,omitempty"`
	RequestedTitle string    `json:"requested_title,omitempty"`
	Status         string    `json:"status"`
	Date           time.Time `json:"date"`
}
