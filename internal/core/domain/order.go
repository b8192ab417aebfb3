package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusDeposit   OrderStatus = "DEPOSIT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// legalTransitions is the single source of truth for the order state
// machine. Any transition not listed here is rejected.
var legalTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDeposit:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PaymentStatus is the state of the buyer's payment for an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusCaptured PaymentStatus = "CAPTURED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// ShippingInfo carries the carrier handoff details for an order.
type ShippingInfo struct {
	Carrier        string     `json:"carrier,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

// PaymentInfo carries how the order was paid for.
type PaymentInfo struct {
	Method        string        `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

// TimelineEntry is one append-only record of an order status change.
// The order's status column always equals the status of its newest entry.
type TimelineEntry struct {
	ID          int64       `json:"id"`
	OrderID     uuid.UUID   `json:"order_id"`
	Status      OrderStatus `json:"status"`
	Description string      `json:"description"`
	UpdatedBy   string      `json:"updated_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Order is a purchase or a vehicle deposit. Orders are never hard-deleted;
// cancellation is a status.
type Order struct {
	ID          uuid.UUID    `json:"id"`
	OrderNumber string       `json:"order_number"`
	BuyerID     uuid.UUID    `json:"buyer_id"`
	SellerID    uuid.UUID    `json:"seller_id"`
	ProductID   uuid.UUID    `json:"product_id"`
	UnitPrice   int64        `json:"unit_price"`
	TotalAmount int64        `json:"total_amount"`
	ShippingFee int64        `json:"shipping_fee"`
	Commission  int64        `json:"commission"`
	FinalAmount int64        `json:"final_amount"`
	Status      OrderStatus  `json:"status"`
	Shipping    ShippingInfo `json:"shipping"`
	Payment     PaymentInfo  `json:"payment"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RefundAmount returns what the buyer gets back when the order is unwound
// from its current state. Deposit orders hold only the deposit itself;
// everything else refunds the full captured amount.
func (o *Order) RefundAmount() int64 {
	if o.Status == OrderStatusDeposit {
		return o.TotalAmount
	}
	return o.FinalAmount
}

// PaymentCaptured reports whether the buyer's money has actually been taken.
func (o *Order) PaymentCaptured() bool {
	return o.Payment.Status == PaymentStatusCaptured
}

// NewOrderNumber generates a unique, sortable order number.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}
