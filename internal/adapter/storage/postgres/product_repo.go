package postgres

import (
	"context"
	"errors"
	"fmt"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	pool Pool
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(pool Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

// GetByID fetches a product by its UUID.
func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT id, seller_id, name, category, price, deposit_amount, status, created_at, updated_at
		FROM products WHERE id = $1`

	p := &domain.Product{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.SellerID, &p.Name, &p.Category, &p.Price, &p.DepositAmount,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// UpdateStatus flips the listing status within a transaction.
func (r *ProductRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.ProductStatus) error {
	query := `UPDATE products SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update product status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update product status: product %s not found", id)
	}
	return nil
}
