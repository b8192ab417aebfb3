package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ev-marketplace/internal/adapter/http/dto"
	"ev-marketplace/internal/adapter/http/middleware"
	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/internal/core/ports/mocks"
	"ev-marketplace/internal/service"
	"ev-marketplace/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(t *testing.T, method, path string, body any, userID uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		c.Set(middleware.CtxUserID, userID)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func testEntry(userID uuid.UUID, entryType domain.EntryType, amount int64) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: 1_000_000,
		Status:       domain.EntryStatusCompleted,
		CreatedAt:    time.Now(),
	}
}

// --- Wallet Handler ---

func TestWalletGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger)

	userID := uuid.New()
	ledger.EXPECT().GetBalance(gomock.Any(), userID).Return(int64(2_500_000), nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/wallets/balance", nil, userID)
	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2_500_000), data["balance"])
	assert.Equal(t, "VND", data["currency"])
}

func TestWalletGetBalance_NoIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	c, w := testContext(t, http.MethodGet, "/api/v1/wallets/balance", nil, uuid.Nil)
	h.GetBalance(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletWithdraw_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger)

	userID := uuid.New()
	ledger.EXPECT().Debit(gomock.Any(), ports.MoveRequest{
		UserID:      userID,
		Amount:      300_000,
		EntryType:   domain.EntryTypeWithdraw,
		Reference:   "WD-20260831-1",
		Description: "to bank",
	}).Return(testEntry(userID, domain.EntryTypeWithdraw, 300_000), true, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/wallets/withdraw", dto.WithdrawRequest{
		Amount:      300_000,
		Reference:   "WD-20260831-1",
		Description: "to bank",
	}, userID)
	h.Withdraw(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["applied"])
}

func TestWalletWithdraw_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger)

	userID := uuid.New()
	ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).
		Return(nil, false, apperror.ErrInsufficientFunds())

	c, w := testContext(t, http.MethodPost, "/api/v1/wallets/withdraw", dto.WithdrawRequest{
		Amount:    999_999_999,
		Reference: "WD-BIG",
	}, userID)
	h.Withdraw(c)

	assert.Equal(t, "WAL_001", errorCode(t, w))
}

func TestWalletWithdraw_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	// Missing reference
	c, w := testContext(t, http.MethodPost, "/api/v1/wallets/withdraw", gin.H{"amount": 100}, uuid.New())
	h.Withdraw(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))
}

func TestWalletListTransactions(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(ledger)

	userID := uuid.New()
	ledger.EXPECT().ListEntries(gomock.Any(), userID, 5, 10).
		Return([]domain.LedgerEntry{*testEntry(userID, domain.EntryTypeDeposit, 50_000)}, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/wallets/transactions?limit=5&offset=10", nil, userID)
	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	entries, ok := resp["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 1)
}

// --- Order Handler ---

func testOrder(buyerID uuid.UUID) *domain.Order {
	return &domain.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-TEST-1",
		BuyerID:     buyerID,
		SellerID:    uuid.New(),
		ProductID:   uuid.New(),
		UnitPrice:   12_000_000,
		TotalAmount: 12_000_000,
		ShippingFee: 50_000,
		FinalAmount: 12_050_000,
		Status:      domain.OrderStatusPending,
		Payment:     domain.PaymentInfo{Method: "WALLET", Status: domain.PaymentStatusCaptured},
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	buyerID := uuid.New()
	productID := uuid.New()
	order := testOrder(buyerID)

	orderSvc.EXPECT().PlaceOrder(gomock.Any(), ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     productID,
		PaymentMethod: "WALLET",
		ShippingFee:   50_000,
	}).Return(order, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/orders", dto.PlaceOrderRequest{
		ProductID:     productID.String(),
		PaymentMethod: "WALLET",
		ShippingFee:   50_000,
	}, buyerID)
	h.PlaceOrder(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "ORD-TEST-1", data["order_number"])
	assert.Equal(t, "PENDING", data["status"])
}

func TestPlaceOrder_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderSvc.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds())

	c, w := testContext(t, http.MethodPost, "/api/v1/orders", dto.PlaceOrderRequest{
		ProductID:     uuid.New().String(),
		PaymentMethod: "WALLET",
	}, uuid.New())
	h.PlaceOrder(c)

	assert.Equal(t, "WAL_001", errorCode(t, w))
}

func TestPlaceOrder_BadProductID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl))

	c, w := testContext(t, http.MethodPost, "/api/v1/orders", gin.H{
		"product_id":     "not-a-uuid",
		"payment_method": "WALLET",
	}, uuid.New())
	h.PlaceOrder(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransition_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	actorID := uuid.New()
	order := testOrder(actorID)
	order.Status = domain.OrderStatusConfirmed

	orderSvc.EXPECT().
		Transition(gomock.Any(), "ORD-TEST-1", domain.OrderStatusConfirmed, actorID.String(), "seller accepted").
		Return(order, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/orders/ORD-TEST-1/transition", dto.TransitionRequest{
		Status: "CONFIRMED",
		Reason: "seller accepted",
	}, actorID)
	c.Params = gin.Params{{Key: "number", Value: "ORD-TEST-1"}}
	h.Transition(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CONFIRMED", decodeData(t, w)["status"])
}

func TestTransition_UnsupportedTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl))

	// SHIPPED must go through the ship endpoint, not a raw transition.
	c, w := testContext(t, http.MethodPost, "/api/v1/orders/ORD-TEST-1/transition", dto.TransitionRequest{
		Status: "SHIPPED",
	}, uuid.New())
	c.Params = gin.Params{{Key: "number", Value: "ORD-TEST-1"}}
	h.Transition(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransition_IllegalTransition(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderSvc.EXPECT().Transition(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidTransition("DELIVERED", "CANCELLED"))

	c, w := testContext(t, http.MethodPost, "/api/v1/orders/ORD-TEST-1/transition", dto.TransitionRequest{
		Status: "CANCELLED",
	}, uuid.New())
	c.Params = gin.Params{{Key: "number", Value: "ORD-TEST-1"}}
	h.Transition(c)

	assert.Equal(t, "ORD_001", errorCode(t, w))
}

func TestShip_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	actorID := uuid.New()
	order := testOrder(actorID)
	order.Status = domain.OrderStatusShipped
	order.Shipping = domain.ShippingInfo{Carrier: "ghn", TrackingNumber: "GHN42"}

	orderSvc.EXPECT().
		Ship(gomock.Any(), "ORD-TEST-1", "ghn", "GHN42", actorID.String()).
		Return(order, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/orders/ORD-TEST-1/ship", dto.ShipRequest{
		Carrier:        "ghn",
		TrackingNumber: "GHN42",
	}, actorID)
	c.Params = gin.Params{{Key: "number", Value: "ORD-TEST-1"}}
	h.Ship(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SHIPPED", decodeData(t, w)["status"])
}

func TestCancel_DefaultReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	actorID := uuid.New()
	order := testOrder(actorID)
	order.Status = domain.OrderStatusCancelled

	orderSvc.EXPECT().
		Cancel(gomock.Any(), "ORD-TEST-1", actorID.String(), "").
		Return(order, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/orders/ORD-TEST-1/cancel", nil, actorID)
	c.Params = gin.Params{{Key: "number", Value: "ORD-TEST-1"}}
	h.Cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderSvc.EXPECT().GetOrder(gomock.Any(), "ORD-MISSING").
		Return(nil, apperror.ErrOrderNotFound("ORD-MISSING"))

	c, w := testContext(t, http.MethodGet, "/api/v1/orders/ORD-MISSING", nil, uuid.New())
	c.Params = gin.Params{{Key: "number", Value: "ORD-MISSING"}}
	h.GetOrder(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORD_002", errorCode(t, w))
}

// --- Webhook Handler ---

const callbackSecret = "webhook-test-secret"

func signedCallback(t *testing.T, payload dto.PaymentCallbackPayload) dto.PaymentCallbackRequest {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(raw)

	sigSvc := service.NewHMACSignatureService()
	return dto.PaymentCallbackRequest{
		Payload:   encoded,
		Signature: sigSvc.Sign(callbackSecret, encoded),
	}
}

func newWebhookHandler(ledger ports.LedgerService) *WebhookHandler {
	return NewWebhookHandler(ledger, service.NewHMACSignatureService(), callbackSecret, zerolog.Nop())
}

func TestPaymentCallback_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := newWebhookHandler(ledger)

	userID := uuid.New()
	ledger.EXPECT().Credit(gomock.Any(), ports.MoveRequest{
		UserID:      userID,
		Amount:      1_000_000,
		EntryType:   domain.EntryTypeDeposit,
		Reference:   "TXN-GW-77",
		Description: "Payment gateway deposit",
	}).Return(testEntry(userID, domain.EntryTypeDeposit, 1_000_000), true, nil)

	req := signedCallback(t, dto.PaymentCallbackPayload{
		UserID:        userID.String(),
		Amount:        1_000_000,
		TransactionID: "TXN-GW-77",
	})

	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks/payment", req, uuid.Nil)
	h.PaymentCallback(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["applied"])
}

func TestPaymentCallback_Redelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := newWebhookHandler(ledger)

	userID := uuid.New()
	ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).
		Return(testEntry(userID, domain.EntryTypeDeposit, 1_000_000), false, nil)

	req := signedCallback(t, dto.PaymentCallbackPayload{
		UserID:        userID.String(),
		Amount:        1_000_000,
		TransactionID: "TXN-GW-77",
	})

	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks/payment", req, uuid.Nil)
	h.PaymentCallback(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeData(t, w)["applied"])
}

func TestPaymentCallback_BadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := newWebhookHandler(ledger)

	req := signedCallback(t, dto.PaymentCallbackPayload{
		UserID:        uuid.New().String(),
		Amount:        1_000_000,
		TransactionID: "TXN-GW-77",
	})
	req.Signature = "deadbeef"

	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks/payment", req, uuid.Nil)
	h.PaymentCallback(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SEC_001", errorCode(t, w))
}

func TestPaymentCallback_BadPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newWebhookHandler(mocks.NewMockLedgerService(ctrl))

	// Correctly signed but not base64
	sigSvc := service.NewHMACSignatureService()
	req := dto.PaymentCallbackRequest{
		Payload:   "!!not-base64!!",
		Signature: sigSvc.Sign(callbackSecret, "!!not-base64!!"),
	}

	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks/payment", req, uuid.Nil)
	h.PaymentCallback(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Sync Handler ---

func TestSyncOrder_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	reconciler := mocks.NewMockReconcilerService(ctrl)
	h := NewSyncHandler(reconciler)

	reconciler.EXPECT().SyncOrder(gomock.Any(), "ORD-TEST-1").Return(&ports.SyncResult{
		OrderNumber:   "ORD-TEST-1",
		CarrierStatus: "delivered",
		MappedStatus:  domain.OrderStatusDelivered,
		Transitioned:  true,
	}, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/admin/sync/orders/ORD-TEST-1", nil, uuid.New())
	c.Params = gin.Params{{Key: "number", Value: "ORD-TEST-1"}}
	h.SyncOrder(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["transitioned"])
}

func TestSyncAll_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	reconciler := mocks.NewMockReconcilerService(ctrl)
	h := NewSyncHandler(reconciler)

	reconciler.EXPECT().SyncAll(gomock.Any()).Return([]ports.SyncResult{
		{OrderNumber: "ORD-1", Transitioned: true},
		{OrderNumber: "ORD-2"},
	}, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/admin/sync/orders", nil, uuid.New())
	h.SyncAll(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeData(t, w)["synced"])
}

// --- Health ---

type staticChecker struct {
	name string
	err  error
}

func (s staticChecker) Name() string                 { return s.name }
func (s staticChecker) Ping(_ context.Context) error { return s.err }

func TestHealthCheck(t *testing.T) {
	c, w := testContext(t, http.MethodGet, "/health", nil, uuid.Nil)
	HealthCheck(staticChecker{name: "postgresql"}, staticChecker{name: "redis"})(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck_Degraded(t *testing.T) {
	c, w := testContext(t, http.MethodGet, "/health", nil, uuid.Nil)
	HealthCheck(
		staticChecker{name: "postgresql"},
		staticChecker{name: "redis", err: errors.New("connection refused")},
	)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

