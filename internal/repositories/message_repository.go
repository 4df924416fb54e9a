package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"barter-service/internal/gset"
	"barter-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, from_id, to_id, from_name, to_name, text, created_at, product_id, counter_offer_product_id,
        product_title, counter_offer_product_title, donation_id, donation_title, is_initial_offer, confirmed_by, status, is_system, is_read`

// MessageRepository is the flat, unordered message log.
type MessageRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	UpdateText(ctx context.Context, messageID string, text string) error
	UpdateConfirmation(ctx context.Context, messageID string, confirmedBy gset.GSet, status string) error
	DeleteMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, userID string, messageIDs []string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// ListForUser returns every live message the user sent or received, oldest first.
func (r *MessageRepo) ListForUser(ctx context.Context, userID string) ([]models.Message, error) {
	query := r.db.Rebind(`SELECT ` + messageColumns + `
        FROM messages
        WHERE (from_id = ? OR to_id = ?) AND deleted = FALSE
        ORDER BY created_at ASC`)
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userID, userID)
	return msgs, err
}

// GetMessage retrieves a single live message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ? AND deleted = FALSE`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// CreateMessage stores msg, assigning an id and timestamp when missing.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO messages (`+messageColumns+`)
        VALUES (:id, :from_id, :to_id, :from_name, :to_name, :text, :created_at, :product_id, :counter_offer_product_id,
        :product_title, :counter_offer_product_title, :donation_id, :donation_title, :is_initial_offer, :confirmed_by, :status, :is_system, :is_read)`, msg)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// UpdateText edits the text of a message.
func (r *MessageRepo) UpdateText(ctx context.Context, messageID string, text string) error {
	return r.execOne(ctx, `UPDATE messages SET text = ? WHERE id = ? AND deleted = FALSE`, text, messageID)
}

// UpdateConfirmation rewrites the confirmation fields mirrored on a message.
func (r *MessageRepo) UpdateConfirmation(ctx context.Context, messageID string, confirmedBy gset.GSet, status string) error {
	return r.execOne(ctx, `UPDATE messages SET confirmed_by = ?, status = ? WHERE id = ? AND deleted = FALSE`, confirmedBy, status, messageID)
}

// DeleteMessage hides a message from every participant.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID string) error {
	return r.execOne(ctx, `UPDATE messages SET deleted = TRUE WHERE id = ? AND deleted = FALSE`, messageID)
}

// MarkRead sets the read marker on the given messages addressed to userID.
func (r *MessageRepo) MarkRead(ctx context.Context, userID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE messages SET is_read = TRUE WHERE to_id = ? AND id IN (?)`, userID, messageIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *MessageRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
