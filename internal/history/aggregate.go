// Package history merges exchanges and delivered donations into one list.
package history

import (
	"sort"

	"barter-service/internal/confirmation"
	"barter-service/internal/models"
)

// Item kinds.
const (
	KindExchange = "exchange"
	KindDonation = "donation"
)

// Aggregate returns the combined history, newest first.
//
// Transactions with a stable id are deduplicated by id. A transaction still
// carrying a temporary id is dropped only when it shares a product with an
// already admitted stable entry; stable entries are ordered first so the
// stable copy always wins.
func Aggregate(transactions []models.Transaction, donations []models.Donation) []models.HistoryItem {
	txs := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Deleted || tx.IsDonation() {
			continue
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].HasStableID() && !txs[j].HasStableID()
	})

	items := make([]models.HistoryItem, 0, len(txs)+len(donations))
	seenIDs := map[string]bool{}
	stableProducts := map[string]bool{}
	for _, tx := range txs {
		if tx.HasStableID() {
			if seenIDs[tx.ID] {
				continue
			}
			seenIDs[tx.ID] = true
			if tx.OfferedProductID != "" {
				stableProducts[tx.OfferedProductID] = true
			}
			if tx.RequestedProductID != "" {
				stableProducts[tx.RequestedProductID] = true
			}
		} else if stableProducts[tx.OfferedProductID] || stableProducts[tx.RequestedProductID] {
			continue
		}
		items = append(items, exchangeItem(tx))
	}

	seenDonations := map[string]bool{}
	for _, d := range donations {
		if d.Status != models.DonationDelivered || seenDonations[d.ID] {
			continue
		}
		seenDonations[d.ID] = true
		items = append(items, donationItem(d))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})
	return items
}

func exchangeItem(tx models.Transaction) models.HistoryItem {
	title := tx.RequestedProductTitle
	if title == "" {
		title = tx.OfferedProductTitle
	}
	return models.HistoryItem{
		Kind:           KindExchange,
		ID:             tx.Key(),
		Title:          title,
		OfferedTitle:   tx.OfferedProductTitle,
		RequestedTitle: tx.RequestedProductTitle,
		Status:         string(confirmation.DeriveStatus(tx)),
		Date:           tx.LastActivity(),
	}
}

func donationItem(d models.Donation) models.HistoryItem {
	date := d.CreatedAt
	if d.DeliveryDate != nil {
		date = *d.DeliveryDate
	}
	return models.HistoryItem{
		Kind:   KindDonation,
		ID:     d.ID,
		Title:  d.Title,
		Status: d.Status,
		Date:   date,
	}
}
