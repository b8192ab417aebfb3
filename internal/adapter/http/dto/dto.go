// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"time"

	"ev-marketplace/internal/core/domain"
)

// PlaceOrderRequest is the body of POST /api/v1/orders.
type PlaceOrderRequest struct {
	ProductID     string `json:"product_id" binding:"required,uuid"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=WALLET"`
	ShippingFee   int64  `json:"shipping_fee" binding:"gte=0"`
}

// TransitionRequest is the body of POST /api/v1/orders/:number/transition.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

// ShipRequest is the body of POST /api/v1/orders/:number/ship.
type ShipRequest struct {
	Carrier        string `json:"carrier" binding:"required,max=50"`
	TrackingNumber string `json:"tracking_number" binding:"required,max=100"`
}

// WithdrawRequest is the body of POST /api/v1/wallets/withdraw.
type WithdrawRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Reference   string `json:"reference" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
}

// PaymentCallbackRequest is the body the payment gateway posts to the
// deposit webhook. Payload is base64-encoded JSON; Signature is its
// HMAC-SHA256 over the raw payload string.
type PaymentCallbackRequest struct {
	Payload   string `json:"payload" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// PaymentCallbackPayload is the decoded webhook payload.
type PaymentCallbackPayload struct {
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// WalletBalanceResponse is the body of GET /api/v1/wallets/balance.
type WalletBalanceResponse struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

// LedgerEntryResponse is one transaction in the wallet history.
type LedgerEntryResponse struct {
	ID           string    `json:"id"`
	EntryType    string    `json:"entry_type"`
	Amount       int64     `json:"amount"`        // Always positive
	SignedAmount int64     `json:"signed_amount"` // Negative for debits
	BalanceAfter int64     `json:"balance_after"`
	Status       string    `json:"status"`
	Reference    string    `json:"reference,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MoveResponse is returned by endpoints that attempt a ledger movement.
// Applied is false when the reference was already processed.
type MoveResponse struct {
	Entry   LedgerEntryResponse `json:"entry"`
	Applied bool                `json:"applied"`
}

// OrderResponse is the API view of an order.
type OrderResponse struct {
	OrderNumber string                  `json:"order_number"`
	BuyerID     string                  `json:"buyer_id"`
	SellerID    string                  `json:"seller_id"`
	ProductID   string                  `json:"product_id"`
	UnitPrice   int64                   `json:"unit_price"`
	TotalAmount int64                   `json:"total_amount"`
	ShippingFee int64                   `json:"shipping_fee"`
	Commission  int64                   `json:"commission"`
	FinalAmount int64                   `json:"final_amount"`
	Status      string                  `json:"status"`
	Shipping    domain.ShippingInfo     `json:"shipping"`
	Payment     domain.PaymentInfo      `json:"payment"`
	Timeline    []TimelineEntryResponse `json:"timeline,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// TimelineEntryResponse is one order history record.
type TimelineEntryResponse struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToOrderResponse maps a domain order to its API shape.
func ToOrderResponse(order *domain.Order) OrderResponse {
	resp := OrderResponse{
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID.String(),
		SellerID:    order.SellerID.String(),
		ProductID:   order.ProductID.String(),
		UnitPrice:   order.UnitPrice,
		TotalAmount: order.TotalAmount,
		ShippingFee: order.ShippingFee,
		Commission:  order.Commission,
		FinalAmount: order.FinalAmount,
		Status:      string(order.Status),
		Shipping:    order.Shipping,
		Payment:     order.Payment,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, entry := range order.Timeline {
		resp.Timeline = append(resp.Timeline, TimelineEntryResponse{
			Status:      string(entry.Status),
			Description: entry.Description,
			UpdatedBy:   entry.UpdatedBy,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}

// ToLedgerEntryResponse maps a ledger entry to its API shape.
func ToLedgerEntryResponse(entry *domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:           entry.ID.String(),
		EntryType:    string(entry.EntryType),
		Amount:       entry.Amount,
		SignedAmount: entry.SignedAmount(),
		BalanceAfter: entry.BalanceAfter,
		Status:       string(entry.Status),
		Reference:    entry.Reference,
		Description:  entry.Description,
		CreatedAt:    entry.CreatedAt,
	}
}
