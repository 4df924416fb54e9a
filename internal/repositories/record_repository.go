package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"barter-service/internal/models"
)

var ErrRecordNotFound = errors.New("user record not found")

// RecordRepository stores each user's profile together with their own copy
// of every transaction. Writes replace the whole collection.
type RecordRepository interface {
	ReadRecord(ctx context.Context, userID string) (models.UserRecord, error)
	WriteTransactions(ctx context.Context, userID string, transactions []models.Transaction) error
	UpsertProfile(ctx context.Context, userID string, displayName string) error
}

// RecordRepo is a sqlx implementation of RecordRepository.
type RecordRepo struct {
	db *sqlx.DB
}

// NewRecordRepo constructs a RecordRepo.
func NewRecordRepo(db *sqlx.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// ReadRecord fetches the user's record.
func (r *RecordRepo) ReadRecord(ctx context.Context, userID string) (models.UserRecord, error) {
	var rec models.UserRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`SELECT user_id, display_name, transactions, updated_at FROM user_records WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRecord{}, ErrRecordNotFound
	}
	return rec, err
}

// WriteTransactions replaces the user's transaction collection, creating the
// record when it does not exist yet.
func (r *RecordRepo) WriteTransactions(ctx context.Context, userID string, transactions []models.Transaction) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO user_records (user_id, display_name, transactions, updated_at) VALUES (?, '', ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET transactions = EXCLUDED.transactions, updated_at = EXCLUDED.updated_at`),
		userID, models.TransactionList(transactions), time.Now().UTC())
	return err
}

// UpsertProfile sets the display name shown to counterparties.
func (r *RecordRepo) UpsertProfile(ctx context.Context, userID string, displayName string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO user_records (user_id, display_name, transactions, updated_at) VALUES (?, ?, '[]', ?)
        ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at`),
		userID, displayName, time.Now().UTC())
	return err
}
