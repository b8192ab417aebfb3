package integration

import (
	"context"
	"testing"

	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestPurchaseFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(20_000_000)
	battery := env.newBattery(12_000_000)

	order, err := env.orders.PlaceOrder(ctx, ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     battery.ID,
		PaymentMethod: "WALLET",
		ShippingFee:   50_000,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(12_050_000), order.FinalAmount)
	assert.Equal(t, int64(600_000), order.Commission) // 5% of unit price
	assert.Equal(t, int64(20_000_000-12_050_000), env.store.balance(buyerID))

	// Exactly one purchase debit, referenced by the order number.
	entry, err := env.ledgerRepo.GetByReference(ctx, buyerID, domain.EntryTypePurchase, order.OrderNumber)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(12_050_000), entry.Amount)

	// Listing is consumed.
	product, err := (&memProductRepo{store: env.store}).GetByID(ctx, battery.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusSold, product.Status)
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(1_000_000)
	battery := env.newBattery(12_000_000)

	_, err := env.orders.PlaceOrder(ctx, ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     battery.ID,
		PaymentMethod: "WALLET",
	})
	require.Error(t, err)
	assert.Equal(t, "WAL_001", appCode(t, err))

	// Nothing moved, nothing recorded.
	assert.Equal(t, int64(1_000_000), env.store.balance(buyerID))
	assert.Equal(t, 0, env.store.countEntries(domain.EntryTypePurchase, ""))
}

func TestVehicleDepositFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(2_000_000)
	vehicle := env.newVehicle(420_000_000, 500_000)

	order, err := env.orders.PlaceOrder(ctx, ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     vehicle.ID,
		PaymentMethod: "WALLET",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusDeposit, order.Status)
	assert.Equal(t, int64(500_000), order.FinalAmount)
	assert.Equal(t, int64(0), order.Commission)
	assert.Equal(t, int64(1_500_000), env.store.balance(buyerID))

	product, err := (&memProductRepo{store: env.store}).GetByID(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusDeposit, product.Status)
}

func TestVehicleDepositSaga_RollbackOnOrderFailure(t *testing.T) {
	env := newTestEnv(t, withFailingOrderCreate())
	ctx := context.Background()

	buyerID := env.newBuyer(2_000_000)
	vehicle := env.newVehicle(420_000_000, 500_000)

	_, err := env.orders.PlaceOrder(ctx, ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     vehicle.ID,
		PaymentMethod: "WALLET",
	})
	require.Error(t, err)

	// The debit was compensated: balance back to where it started, with
	// a debit + rollback credit pair on the ledger.
	assert.Equal(t, int64(2_000_000), env.store.balance(buyerID))
	assert.Equal(t, 1, env.store.countEntries(domain.EntryTypePurchase, "ORD-"))
	assert.Equal(t, 1, env.store.countEntries(domain.EntryTypeRefund, "ROLLBACK-ORD-"))
}

func TestCancel_RefundsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(15_000_000)
	battery := env.newBattery(12_000_000)

	order, err := env.orders.PlaceOrder(ctx, ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     battery.ID,
		PaymentMethod: "WALLET",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3_000_000), env.store.balance(buyerID))

	cancelled, err := env.orders.Cancel(ctx, order.OrderNumber, "buyer", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, cancelled.Payment.Status)
	assert.Equal(t, int64(15_000_000), env.store.balance(buyerID))

	// CANCELLED is terminal; a second cancel is rejected and no second
	// refund is written.
	_, err = env.orders.Cancel(ctx, order.OrderNumber, "buyer", "again")
	require.Error(t, err)
	assert.Equal(t, "ORD_001", appCode(t, err))
	assert.Equal(t, 1, env.store.countEntries(domain.EntryTypeRefund, order.OrderNumber))

	// Listing released.
	product, err := (&memProductRepo{store: env.store}).GetByID(ctx, battery.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusActive, product.Status)
}

func TestShipAndDeliver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(15_000_000)
	battery := env.newBattery(12_000_000)

	order := env.shipOrder(t, buyerID, battery, "GHN-100")
	assert.Equal(t, "ghn", order.Shipping.Carrier)
	assert.NotNil(t, order.Shipping.ShippedAt)

	delivered, err := env.orders.Transition(ctx, order.OrderNumber, domain.OrderStatusDelivered, "carrier-sync", "Delivered")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.Shipping.DeliveredAt)

	// No refund on a delivered order; buyer stays debited.
	assert.Equal(t, int64(3_000_000), env.store.balance(buyerID))

	// Full timeline: placed, shipped, delivered.
	full, err := env.orders.GetOrder(ctx, order.OrderNumber)
	require.NoError(t, err)
	require.Len(t, full.Timeline, 3)
	assert.Equal(t, domain.OrderStatusDelivered, full.Timeline[2].Status)
}
