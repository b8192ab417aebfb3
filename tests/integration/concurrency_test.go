package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two debits race for funds that cover only one of them: the conditional
// balance check must pick exactly one winner and never go negative.
func TestConcurrentDebits_OneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(1_000_000)

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, applied, err := env.ledger.Debit(ctx, ports.MoveRequest{
				UserID:      buyerID,
				Amount:      800_000,
				EntryType:   domain.EntryTypeWithdraw,
				Reference:   fmt.Sprintf("WD-RACE-%d", n),
				Description: "racing withdrawal",
			})
			if err == nil && applied {
				successes <- fmt.Sprintf("WD-RACE-%d", n)
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	var winners []string
	for ref := range successes {
		winners = append(winners, ref)
	}
	require.Len(t, winners, 1, "exactly one debit may win the remaining balance")
	assert.Equal(t, int64(200_000), env.store.balance(buyerID))
	assert.Equal(t, 1, env.store.countEntries(domain.EntryTypeWithdraw, "WD-RACE-"))
}

// Concurrent buyers race for one listing's last affordable purchase; wallet
// balances must stay consistent regardless of interleaving.
func TestConcurrentPurchases_BalancesConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const buyers = 6

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	buyerIDs := make([]ports.PlaceOrderRequest, 0, buyers)
	for i := 0; i < buyers; i++ {
		buyerIDs = append(buyerIDs, ports.PlaceOrderRequest{
			BuyerID:       env.newBuyer(10_000_000),
			ProductID:     env.newBattery(4_000_000).ID,
			PaymentMethod: "WALLET",
		})
	}

	for _, req := range buyerIDs {
		wg.Add(1)
		go func(req ports.PlaceOrderRequest) {
			defer wg.Done()
			_, err := env.orders.PlaceOrder(ctx, req)
			errs <- err
		}(req)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for _, req := range buyerIDs {
		assert.Equal(t, int64(6_000_000), env.store.balance(req.BuyerID))
	}
}

// Retried withdrawals with the same reference apply once; the retry sees
// "already applied" instead of a double debit.
func TestRetriedWithdrawal_AppliesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buyerID := env.newBuyer(1_000_000)

	req := ports.MoveRequest{
		UserID:      buyerID,
		Amount:      400_000,
		EntryType:   domain.EntryTypeWithdraw,
		Reference:   "WD-RETRY-1",
		Description: "withdrawal",
	}

	_, applied, err := env.ledger.Debit(ctx, req)
	require.NoError(t, err)
	assert.True(t, applied)

	for i := 0; i < 3; i++ {
		entry, applied, err := env.ledger.Debit(ctx, req)
		require.NoError(t, err)
		assert.False(t, applied)
		require.NotNil(t, entry)
		assert.Equal(t, "WD-RETRY-1", entry.Reference)
	}

	assert.Equal(t, int64(600_000), env.store.balance(buyerID))
	assert.Equal(t, 1, env.store.countEntries(domain.EntryTypeWithdraw, "WD-RETRY-1"))
}
