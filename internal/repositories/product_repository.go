package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"barter-service/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

// ProductRepository is the slice of the product collaborator the exchange
// flow needs.
type ProductRepository interface {
	SetExchanged(ctx context.Context, productID string) error
}

// ProductRepo is a sqlx implementation of ProductRepository.
type ProductRepo struct {
	db *sqlx.DB
}

// NewProductRepo constructs a ProductRepo.
func NewProductRepo(db *sqlx.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

// SetExchanged marks a product as exchanged and no longer available.
func (r *ProductRepo) SetExchanged(ctx context.Context, productID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE products SET status = ? WHERE id = ?`), models.ProductExchanged, productID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrProductNotFound
	}
	return nil
}
