package postgres

import (
	"context"
	"errors"
	"fmt"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository. Balance mutations are
// single conditional UPDATE statements; the row version the caller read
// beforehand never participates in the arithmetic.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, balance, total_deposited, total_spent, created_at, updated_at`

// Create inserts a new wallet into the database.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, user_id, balance, total_deposited, total_spent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.UserID, w.Balance, w.TotalDeposited, w.TotalSpent,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet by user ID (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.TotalDeposited, &w.TotalSpent,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}

// Credit adds amount to the balance within a transaction and returns the
// updated wallet, or nil when the user has no wallet.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, trackDeposit bool) (*domain.Wallet, error) {
	query := `UPDATE wallets
		SET balance = balance + $1,
		    total_deposited = total_deposited + CASE WHEN $2 THEN $1 ELSE 0 END,
		    updated_at = NOW()
		WHERE user_id = $3
		RETURNING ` + walletColumns

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, amount, trackDeposit, userID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.TotalDeposited, &w.TotalSpent,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	return w, nil
}

// Debit subtracts amount within a transaction, guarded by balance >= amount
// in the WHERE clause. Returns nil when the guard matched no row: either the
// wallet is missing or the funds are not there. Two debits racing for the
// last of a balance serialize on the row lock and exactly one gets it.
func (r *WalletRepo) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*domain.Wallet, error) {
	query := `UPDATE wallets
		SET balance = balance - $1,
		    total_spent = total_spent + $1,
		    updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
		RETURNING ` + walletColumns

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, amount, userID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.TotalDeposited, &w.TotalSpent,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("debit wallet: %w", err)
	}
	return w, nil
}
