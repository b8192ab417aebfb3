package ports

import (
	"context"
	"time"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MoveRequest holds validated input for a single ledger movement.
type MoveRequest struct {
	UserID      uuid.UUID
	Amount      int64
	EntryType   domain.EntryType
	Reference   string // Empty reference skips deduplication
	Description string
	Metadata    map[string]string
}

// LedgerService is the only path for money movement. A movement mutates
// exactly one wallet and appends exactly one ledger entry, committed
// together. Duplicate references are not errors: the existing entry is
// returned with applied=false ("already applied").
type LedgerService interface {
	Credit(ctx context.Context, req MoveRequest) (entry *domain.LedgerEntry, applied bool, err error)
	Debit(ctx context.Context, req MoveRequest) (entry *domain.LedgerEntry, applied bool, err error)
	// CreditTx/DebitTx run inside a caller-owned transaction so a state
	// machine transition and its ledger effect commit or abort as one.
	CreditTx(ctx context.Context, tx pgx.Tx, req MoveRequest) (entry *domain.LedgerEntry, applied bool, err error)
	DebitTx(ctx context.Context, tx pgx.Tx, req MoveRequest) (entry *domain.LedgerEntry, applied bool, err error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
}

// PlaceOrderRequest holds validated input for creating an order.
type PlaceOrderRequest struct {
	BuyerID       uuid.UUID
	ProductID     uuid.UUID
	PaymentMethod string
	ShippingFee   int64
}

// OrderService runs the order state machine. Every transition validates
// against the legal-transition table, applies any ledger effect, appends a
// timeline entry and persists the new status atomically.
type OrderService interface {
	// PlaceOrder routes on product category: batteries start at PENDING
	// with the full amount debited; vehicles start at DEPOSIT via the
	// two-step saga with rollback compensation.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error)
	Transition(ctx context.Context, orderNumber string, target domain.OrderStatus, actor, description string) (*domain.Order, error)
	// Ship records the carrier handoff and moves the order to SHIPPED.
	Ship(ctx context.Context, orderNumber, carrier, trackingNumber, actor string) (*domain.Order, error)
	Cancel(ctx context.Context, orderNumber, actor, reason string) (*domain.Order, error)
}

// ShipmentStatus is the carrier's report for one tracking number.
type ShipmentStatus struct {
	TrackingNumber string
	Status         string // Carrier-specific vocabulary; never shown to the state machine
	RawPayload     []byte
}

// CarrierClient is the external shipping carrier HTTP API.
type CarrierClient interface {
	GetShipmentStatus(ctx context.Context, trackingNumber string) (*ShipmentStatus, error)
	CreateShipment(ctx context.Context, order *domain.Order) (trackingNumber string, err error)
	CancelShipment(ctx context.Context, trackingNumber string) error
	RequestReturn(ctx context.Context, trackingNumber string) error
}

// SyncResult describes what one reconciliation pass did.
type SyncResult struct {
	OrderNumber   string             `json:"order_number"`
	CarrierStatus string             `json:"carrier_status"`
	MappedStatus  domain.OrderStatus `json:"mapped_status,omitempty"`
	Transitioned  bool               `json:"transitioned"`
}

// ReconcilerService aligns internal order status with the carrier's
// reports. Safe to invoke arbitrarily often: repeated calls with an
// unchanged carrier status are no-ops, and refund effects dedupe on the
// ledger reference.
type ReconcilerService interface {
	SyncOrder(ctx context.Context, orderNumber string) (*SyncResult, error)
	SyncAll(ctx context.Context) ([]SyncResult, error)
}

// SignatureService verifies HMAC-SHA256 payload signatures from the
// payment gateway callback.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles JWT token operations for the API surface.
type TokenService interface {
	Generate(userID uuid.UUID, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   string
}

// EventPublisher broadcasts order lifecycle events. Best-effort: failures
// are logged, never returned to the business flow.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

// OrderLocker is a best-effort distributed mutex keyed by order number,
// used to keep bulk sync from stampeding a single order. The row lock
// inside the transition transaction remains the correctness mechanism.
type OrderLocker interface {
	TryLock(ctx context.Context, orderNumber string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, orderNumber string) error
}

// CarrierStatusCache short-circuits repeated carrier lookups for the same
// tracking number within a small TTL.
type CarrierStatusCache interface {
	Get(ctx context.Context, trackingNumber string) (*ShipmentStatus, error) // nil, nil on miss
	Set(ctx context.Context, trackingNumber string, status *ShipmentStatus, ttl time.Duration) error
}
