package domain

import "time"

// Order event types published to the notification channel. Delivery is
// best-effort; correctness never depends on these.
const (
	EventOrderCreated   = "ORDER_CREATED"
	EventOrderStatus    = "ORDER_STATUS_CHANGED"
	EventOrderRefunded  = "ORDER_REFUNDED"
	EventWalletCredited = "WALLET_CREDITED"
)

// OrderEvent is the payload broadcast on order lifecycle changes.
type OrderEvent struct {
	EventType   string      `json:"event_type"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
	Actor       string      `json:"actor"`
	Amount      int64       `json:"amount,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
