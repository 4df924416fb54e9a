package models

import (
	"time"

	"barter-service/internal/gset"
)

// Message is one entry of the flat per-user message log.
type Message struct {
	ID                       string    `db:"id" json:"id"`
	FromID                   string    `db:"from_id" json:"from_id"`
	ToID                     string    `db:"to_id" json:"to_id"`
	FromName                 string    `db:"from_name" json:"from_name,omitempty"`
	ToName                   string    `db:"to_name" json:"to_name,omitempty"`
	Text                     string    `db:"text" json:"text"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	ProductID                string    `db:"product_id" json:"product_id,omitempty"`
	CounterOfferProductID    string    `db:"counter_offer_product_id" json:"counter_offer_product_id,omitempty"`
	ProductTitle             string    `db:"product_title" json:"product_title,omitempty"`
	CounterOfferProductTitle string    `db:"counter_offer_product_title" json:"counter_offer_product_title,omitempty"`
	DonationID               string    `db:"donation_id" json:"donation_id,omitempty"`
	DonationTitle            string    `db:"donation_title" json:"donation_title,omitempty"`
	IsInitialOffer           bool      `db:"is_initial_offer" json:"is_initial_offer"`
	ConfirmedBy              gset.GSet `db:"confirmed_by" json:"confirmed_by"`
	Status                   string    `db:"status" json:"status,omitempty"`
	IsSystem                 bool      `db:"is_system" json:"is_system"`
	Read                     bool      `db:"is_read" json:"read"`
}

// Message status values mirrored from the matched transaction.
const (
	MessageStatusPending   = "pending"
	MessageStatusCompleted = "completed"
)

// HasProductPair reports whether both sides of an exchange are identified.
func (m Message) HasProductPair() bool {
	return m.ProductID != "" && m.CounterOfferProductID != ""
}

// Counterparty returns the other participant relative to viewerID.
func (m Message) Counterparty(viewerID string) string {
	if gset.NormalizeID(m.FromID) == gset.NormalizeID(viewerID) {
		return m.ToID
	}
	return m.FromID
}
