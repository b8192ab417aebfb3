package postgres

import (
	"context"
	"errors"
	"fmt"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, order_number, buyer_id, seller_id, product_id, unit_price, total_amount, shipping_fee, commission, final_amount, status, carrier, tracking_number, shipped_at, delivered_at, payment_method, payment_status, transaction_id, created_at, updated_at`

// Create inserts a new order within a transaction.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `INSERT INTO orders (id, order_number, buyer_id, seller_id, product_id, unit_price,
		total_amount, shipping_fee, commission, final_amount, status, carrier, tracking_number,
		shipped_at, delivered_at, payment_method, payment_status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := tx.Exec(ctx, query,
		o.ID, o.OrderNumber, o.BuyerID, o.SellerID, o.ProductID, o.UnitPrice,
		o.TotalAmount, o.ShippingFee, o.Commission, o.FinalAmount, o.Status,
		o.Shipping.Carrier, o.Shipping.TrackingNumber, o.Shipping.ShippedAt, o.Shipping.DeliveredAt,
		o.Payment.Method, o.Payment.Status, o.Payment.TransactionID,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByNumber fetches an order by its order number (non-locking read).
func (r *OrderRepo) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, orderNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return o, nil
}

// GetByNumberForUpdate fetches an order with a row lock. This MUST be
// called within a transaction: the lock is what serializes concurrent
// transitions of the same order.
func (r *OrderRepo) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, orderNumber string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, orderNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

// UpdateStatus sets the order's status within a transaction.
func (r *OrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order status: order %s not found", orderID)
	}
	return nil
}

// UpdateShipping sets the carrier handoff fields within a transaction.
func (r *OrderRepo) UpdateShipping(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, s domain.ShippingInfo) error {
	query := `UPDATE orders SET carrier = $1, tracking_number = $2, shipped_at = $3, delivered_at = $4, updated_at = NOW()
		WHERE id = $5`

	_, err := tx.Exec(ctx, query, s.Carrier, s.TrackingNumber, s.ShippedAt, s.DeliveredAt, orderID)
	if err != nil {
		return fmt.Errorf("update order shipping: %w", err)
	}
	return nil
}

// UpdatePaymentStatus sets the payment status within a transaction.
func (r *OrderRepo) UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.PaymentStatus) error {
	query := `UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`

	_, err := tx.Exec(ctx, query, status, orderID)
	if err != nil {
		return fmt.Errorf("update order payment status: %w", err)
	}
	return nil
}

// AppendTimeline adds a timeline entry within a transaction. Timeline rows
// are never updated or removed.
func (r *OrderRepo) AppendTimeline(ctx context.Context, tx pgx.Tx, e *domain.TimelineEntry) error {
	query := `INSERT INTO order_timeline (order_id, status, description, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, e.OrderID, e.Status, e.Description, e.UpdatedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

// GetTimeline returns an order's timeline, oldest first.
func (r *OrderRepo) GetTimeline(ctx context.Context, orderID uuid.UUID) ([]domain.TimelineEntry, error) {
	query := `SELECT id, order_id, status, description, updated_by, created_at
		FROM order_timeline WHERE order_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order timeline: %w", err)
	}
	defer rows.Close()

	var entries []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Description, &e.UpdatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline entries: %w", err)
	}
	return entries, nil
}

// ListByStatus returns the oldest orders in a given status, capped at limit.
func (r *OrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY updated_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var carrier, trackingNumber, method, transactionID *string
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.ProductID, &o.UnitPrice,
		&o.TotalAmount, &o.ShippingFee, &o.Commission, &o.FinalAmount, &o.Status,
		&carrier, &trackingNumber, &o.Shipping.ShippedAt, &o.Shipping.DeliveredAt,
		&method, &o.Payment.Status, &transactionID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if carrier != nil {
		o.Shipping.Carrier = *carrier
	}
	if trackingNumber != nil {
		o.Shipping.TrackingNumber = *trackingNumber
	}
	if method != nil {
		o.Payment.Method = *method
	}
	if transactionID != nil {
		o.Payment.TransactionID = *transactionID
	}
	return o, nil
}
