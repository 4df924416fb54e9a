// Package confirmation merges the two parties' views of who has confirmed a
// transaction. The confirmation set is a grow-only set and completion is
// sticky, so every operation here only ever moves a transaction forward.
package confirmation

import (
	"barter-service/internal/gset"
	"barter-service/internal/models"
)

// Merge unions a local optimistic set with a remote authoritative one.
func Merge(local, remote gset.GSet) gset.GSet {
	return gset.Union(local, remote)
}

// IsComplete reports whether both distinct parties are in set.
func IsComplete(set gset.GSet, partyA, partyB string) bool {
	a, b := gset.NormalizeID(partyA), gset.NormalizeID(partyB)
	if a == "" || b == "" || a == b {
		return false
	}
	return set.Has(a) && set.Has(b)
}

// MergeStatus never lets a completed status revert to pending.
func MergeStatus(a, b models.TransactionStatus) models.TransactionStatus {
	if a == models.StatusCompleted || b == models.StatusCompleted {
		return models.StatusCompleted
	}
	return models.StatusPendingConfirmation
}

// DeriveStatus recomputes the status of tx from its own fields.
func DeriveStatus(tx models.Transaction) models.TransactionStatus {
	if IsComplete(tx.ConfirmedBy, tx.FromID, tx.ToID) {
		return models.StatusCompleted
	}
	return MergeStatus(tx.Status, models.StatusPendingConfirmation)
}

// TransactionComplete reports completion of tx either by flag or by set.
func TransactionComplete(tx models.Transaction) bool {
	return DeriveStatus(tx) == models.StatusCompleted
}

// AddSelfConfirmation appends myID to the confirmation set when absent and
// re-derives the status. tx is not modified.
func AddSelfConfirmation(tx models.Transaction, myID string) models.Transaction {
	out := tx
	out.ConfirmedBy = tx.ConfirmedBy.Clone()
	out.ConfirmedBy.Add(myID)
	out.Status = DeriveStatus(out)
	return out
}

// MergeTransaction combines two copies of the same transaction. The
// confirmation set is unioned and completion is sticky; every other field
// comes from whichever copy was updated last. A stable id always wins over
// a temporary one.
func MergeTransaction(local, remote models.Transaction) models.Transaction {
	out := remote
	if local.UpdatedAt.After(remote.UpdatedAt) {
		out = local
	}
	out.ConfirmedBy = Merge(local.ConfirmedBy, remote.ConfirmedBy)
	out.Status = MergeStatus(local.Status, remote.Status)
	out.Status = DeriveStatus(out)

	switch {
	case local.HasStableID():
		out.ID = local.ID
	case remote.HasStableID():
		out.ID = remote.ID
	}
	if out.LocalID == "" {
		if local.LocalID != "" {
			out.LocalID = local.LocalID
		} else {
			out.LocalID = remote.LocalID
		}
	}
	if remote.CreatedAt.Before(out.CreatedAt) && !remote.CreatedAt.IsZero() {
		out.CreatedAt = remote.CreatedAt
	}
	if local.CreatedAt.Before(out.CreatedAt) && !local.CreatedAt.IsZero() {
		out.CreatedAt = local.CreatedAt
	}
	return out
}

// Upsert merges tx into list by identity and returns the new list. When no
// copy exists yet tx is appended. The input slice is not modified.
func Upsert(list []models.Transaction, tx models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(list)+1)
	merged := false
	for _, existing := range list {
		if !merged && existing.SameIdentity(tx) {
			out = append(out, MergeTransaction(tx, existing))
			merged = true
			continue
		}
		out = append(out, existing)
	}
	if !merged {
		out = append(out, tx)
	}
	return out
}
