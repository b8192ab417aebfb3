package ports

import (
	"context"
	"time"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets. Balance
// changes are expressed as atomic conditional updates, never read-modify-
// write: two concurrent debits racing for the same funds must resolve in
// the database.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// Credit adds amount to the balance and returns the updated wallet.
	// trackDeposit additionally bumps total_deposited (top-ups only).
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, trackDeposit bool) (*domain.Wallet, error)
	// Debit subtracts amount where balance >= amount and returns the
	// updated wallet, or nil when the condition did not hold.
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*domain.Wallet, error)
}

// LedgerRepository defines persistence for immutable ledger entries.
// Insert relies on the (user_id, entry_type, reference) unique index for
// the at-most-once guarantee; a violation surfaces as a pg unique error.
type LedgerRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByReference(ctx context.Context, userID uuid.UUID, entryType domain.EntryType, reference string) (*domain.LedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	// ListOrphanedDebits returns completed purchase debits older than
	// cutoff whose reference matches no order and that have no
	// compensating ROLLBACK credit yet.
	ListOrphanedDebits(ctx context.Context, cutoff time.Time) ([]domain.LedgerEntry, error)
}

// OrderRepository defines persistence for orders and their timelines.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	// GetByNumberForUpdate row-locks the order; callers serialize
	// transitions per order through this lock.
	GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, orderNumber string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.OrderStatus) error
	UpdateShipping(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, shipping domain.ShippingInfo) error
	UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.PaymentStatus) error
	AppendTimeline(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error
	GetTimeline(ctx context.Context, orderID uuid.UUID) ([]domain.TimelineEntry, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error)
}

// ProductRepository is the catalog collaborator: the core reads price,
// category and availability, and writes status flips as a side effect of
// the order lifecycle.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.ProductStatus) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
