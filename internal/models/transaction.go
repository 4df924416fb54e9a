package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"barter-service/internal/gset"
)

// TransactionStatus is the completion state of a transaction.
type TransactionStatus string

const (
	StatusPendingConfirmation TransactionStatus = "pending_confirmation"
	StatusCompleted           TransactionStatus = "completed"
)

// Transaction kinds. Donation-kind records are never shown in history;
// donations come from the donation store instead.
const (
	KindExchange = "exchange"
	KindDonation = "donation"
)

// Temporary id prefixes. LocalPrefix marks optimistic records created by
// the client; PendingPrefix marks synthetic placeholders for an anchor
// message that has no transaction yet.
const (
	LocalPrefix   = "local-"
	PendingPrefix = "pending-"
)

// Transaction is one party's copy of a barter agreement. Each participant
// stores an independent copy inside their user record.
type Transaction struct {
	ID                    string            `json:"id,omitempty"`
	LocalID               string            `json:"local_id,omitempty"`
	Kind                  string            `json:"kind,omitempty"`
	FromID                string            `json:"from_id"`
	ToID                  string            `json:"to_id"`
	OfferedProductID      string            `json:"offered_product_id,omitempty"`
	OfferedProductTitle   string            `json:"offered_product_title,omitempty"`
	RequestedProductID    string            `json:"requested_product_id,omitempty"`
	RequestedProductTitle string            `json:"requested_product_title,omitempty"`
	Status                TransactionStatus `json:"status"`
	ConfirmedBy           gset.GSet         `json:"confirmed_by"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	Deleted               bool              `json:"deleted,omitempty"`
}

// IsTemporaryID reports whether id was generated client side.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, LocalPrefix) || strings.HasPrefix(id, PendingPrefix)
}

// HasStableID reports whether the record store has assigned an id.
func (t Transaction) HasStableID() bool {
	return t.ID != "" && !IsTemporaryID(t.ID)
}

// Key identifies the transaction: the stable id when present, the
// temporary id otherwise.
func (t Transaction) Key() string {
	if t.HasStableID() {
		return t.ID
	}
	if t.LocalID != "" {
		return t.LocalID
	}
	return t.ID
}

// SameIdentity reports whether t and other are copies of one transaction.
func (t Transaction) SameIdentity(other Transaction) bool {
	if t.HasStableID() && other.HasStableID() {
		return t.ID == other.ID
	}
	if t.LocalID != "" && t.LocalID == other.LocalID {
		return true
	}
	return t.Key() != "" && t.Key() == other.Key()
}

// IsCompleted reports the stored status flag.
func (t Transaction) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// IsDonation reports whether the record was tagged as a donation handoff.
func (t Transaction) IsDonation() bool {
	return t.Kind == KindDonation
}

// LastActivity is the freshest timestamp on the record.
func (t Transaction) LastActivity() time.Time {
	if t.UpdatedAt.After(t.CreatedAt) {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// Counterparty returns the other participant relative to userID.
func (t Transaction) Counterparty(userID string) string {
	if gset.NormalizeID(t.FromID) == gset.NormalizeID(userID) {
		return t.ToID
	}
	return t.FromID
}

// IsParticipant reports whether userID is one of the two parties.
func (t Transaction) IsParticipant(userID string) bool {
	id := gset.NormalizeID(userID)
	return id != "" && (gset.NormalizeID(t.FromID) == id || gset.NormalizeID(t.ToID) == id)
}

// TransactionList is the whole transaction collection embedded in a user
// record, stored as one JSON column.
type TransactionList []Transaction

// Value encodes the list as JSON.
func (l TransactionList) Value() (driver.Value, error) {
	if l == nil {
		l = TransactionList{}
	}
	b, err := json.Marshal([]Transaction(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a JSON column.
func (l *TransactionList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = TransactionList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("transactions: unsupported column type")
	}
	var out []Transaction
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// UserRecord is a participant's profile plus their transaction copies.
type UserRecord struct {
	UserID       string          `db:"user_id" json:"user_id"`
	DisplayName  string          `db:"display_name" json:"display_name"`
	Transactions TransactionList `db:"transactions" json:"transactions"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
