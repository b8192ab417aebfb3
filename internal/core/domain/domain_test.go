package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryType_SignedAmount(t *testing.T) {
	tests := []struct {
		entryType EntryType
		amount    int64
		want      int64
	}{
		{EntryTypeDeposit, 100000, 100000},
		{EntryTypeRefund, 300000, 300000},
		{EntryTypeBonus, 5000, 5000},
		{EntryTypeCommission, 15000, 15000},
		{EntryTypePurchase, 500000, -500000},
		{EntryTypeWithdraw, 200000, -200000},
	}
	for _, tt := range tests {
		e := &LedgerEntry{EntryType: tt.entryType, Amount: tt.amount}
		assert.Equal(t, tt.want, e.SignedAmount(), string(tt.entryType))
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusConfirmed},
		{OrderStatusPending, OrderStatusDelivered},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusDeposit, OrderStatusDelivered},
		{OrderStatusDeposit, OrderStatusCancelled},
		{OrderStatusConfirmed, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusShipped, OrderStatusRefunded},
		{OrderStatusShipped, OrderStatusCancelled},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	rejected := []struct{ from, to OrderStatus }{
		{OrderStatusDelivered, OrderStatusPending},
		{OrderStatusDelivered, OrderStatusRefunded},
		{OrderStatusCancelled, OrderStatusConfirmed},
		{OrderStatusRefunded, OrderStatusShipped},
		{OrderStatusPending, OrderStatusRefunded},
		{OrderStatusDeposit, OrderStatusShipped},
		{OrderStatusPending, OrderStatusDeposit},
	}
	for _, tt := range rejected {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusDeposit.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
}

func TestOrder_RefundAmount(t *testing.T) {
	deposit := &Order{Status: OrderStatusDeposit, TotalAmount: 500000, FinalAmount: 500000}
	assert.Equal(t, int64(500000), deposit.RefundAmount())

	shipped := &Order{Status: OrderStatusShipped, TotalAmount: 280000, FinalAmount: 300000}
	assert.Equal(t, int64(300000), shipped.RefundAmount())
}

func TestNewOrderNumber(t *testing.T) {
	a := NewOrderNumber()
	b := NewOrderNumber()
	assert.True(t, strings.HasPrefix(a, "ORD-"))
	assert.Len(t, a, 4+26) // prefix + ULID
	assert.NotEqual(t, a, b)
}

func TestRollbackReference(t *testing.T) {
	assert.Equal(t, "ROLLBACK-ORD-123", RollbackReference("ORD-123"))
}
