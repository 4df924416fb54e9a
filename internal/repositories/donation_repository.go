package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"barter-service/internal/models"
)

var ErrDonationNotFound = errors.New("donation not found")

// DonationRepository is the donation collaborator.
type DonationRepository interface {
	ListDonations(ctx context.Context, filter models.DonationFilter) ([]models.Donation, error)
	SetDonationStatus(ctx context.Context, donationID string, status string) error
	DeleteDonation(ctx context.Context, donationID string) error
}

// DonationRepo is a sqlx implementation of DonationRepository.
type DonationRepo struct {
	db *sqlx.DB
}

// NewDonationRepo constructs a DonationRepo.
func NewDonationRepo(db *sqlx.DB) *DonationRepo {
	return &DonationRepo{db: db}
}

// ListDonations returns donations matching filter, newest first.
func (r *DonationRepo) ListDonations(ctx context.Context, filter models.DonationFilter) ([]models.Donation, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ParticipantID != "" {
		clauses = append(clauses, `(donor_id = ? OR recipient_id = ?)`)
		args = append(args, filter.ParticipantID, filter.ParticipantID)
	}
	if filter.Status != "" {
		clauses = append(clauses, `status = ?`)
		args = append(args, filter.Status)
	}
	query := `SELECT id, title, donor_id, recipient_id, status, delivery_date, created_at FROM donations`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at DESC`

	var donations []models.Donation
	err := r.db.SelectContext(ctx, &donations, r.db.Rebind(query), args...)
	return donations, err
}

// SetDonationStatus moves a donation to status. Delivered donations get a
// delivery date.
func (r *DonationRepo) SetDonationStatus(ctx context.Context, donationID string, status string) error {
	var deliveredAt *time.Time
	if status == models.DonationDelivered {
		now := time.Now().UTC()
		deliveredAt = &now
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE donations SET status = ?, delivery_date = ? WHERE id = ?`), status, deliveredAt, donationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrDonationNotFound
	}
	return nil
}

// DeleteDonation removes a donation.
func (r *DonationRepo) DeleteDonation(ctx context.Context, donationID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM donations WHERE id = ?`), donationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrDonationNotFound
	}
	return nil
}
