package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	redisStorage "ev-marketplace/internal/adapter/storage/redis"
	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeCarrier is a scriptable stand-in for the shipping carrier API.
type fakeCarrier struct {
	mu     sync.Mutex
	status map[string]string // tracking number -> carrier status
	calls  int
}

func newFakeCarrier() *fakeCarrier {
	return &fakeCarrier{status: make(map[string]string)}
}

func (f *fakeCarrier) setStatus(trackingNumber, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[trackingNumber] = status
}

func (f *fakeCarrier) GetShipmentStatus(ctx context.Context, trackingNumber string) (*ports.ShipmentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	status, ok := f.status[trackingNumber]
	if !ok {
		status = "transporting"
	}
	return &ports.ShipmentStatus{TrackingNumber: trackingNumber, Status: status}, nil
}

func (f *fakeCarrier) CreateShipment(ctx context.Context, order *domain.Order) (string, error) {
	return "TRACK-" + order.OrderNumber, nil
}

func (f *fakeCarrier) CancelShipment(ctx context.Context, trackingNumber string) error { return nil }
func (f *fakeCarrier) RequestReturn(ctx context.Context, trackingNumber string) error  { return nil }

// failOnceOrderRepo fails the first order insert, simulating the deposit
// saga dying between the debit and the order row.
type failOnceOrderRepo struct {
	*memOrderRepo
	mu     sync.Mutex
	failed bool
}

func (r *failOnceOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.failed {
		r.failed = true
		return context.DeadlineExceeded
	}
	return r.memOrderRepo.Create(ctx, tx, order)
}

// testEnv wires the full service stack over in-memory repos and miniredis.
type testEnv struct {
	store      *memStore
	walletRepo *memWalletRepo
	ledgerRepo *memLedgerRepo
	orderRepo  ports.OrderRepository
	ledger     ports.LedgerService
	orders     ports.OrderService
	reconciler ports.ReconcilerService
	carrier    *fakeCarrier
	redis      *miniredis.Miniredis
}

type envOption func(*envConfig)

type envConfig struct {
	orderRepo func(*memStore) ports.OrderRepository
}

// withFailingOrderCreate makes the first order insert fail.
func withFailingOrderCreate() envOption {
	return func(cfg *envConfig) {
		cfg.orderRepo = func(store *memStore) ports.OrderRepository {
			return &failOnceOrderRepo{memOrderRepo: &memOrderRepo{store: store}}
		}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := &envConfig{
		orderRepo: func(store *memStore) ports.OrderRepository {
			return &memOrderRepo{store: store}
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := newMemStore()
	walletRepo := &memWalletRepo{store: store}
	ledgerRepo := &memLedgerRepo{store: store}
	orderRepo := cfg.orderRepo(store)
	productRepo := &memProductRepo{store: store}
	transactor := &memTransactor{}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := zerolog.Nop()
	carrierClient := newFakeCarrier()

	ledgerSvc := service.NewLedgerService(walletRepo, ledgerRepo, transactor, log)
	orderSvc := service.NewOrderService(orderRepo, productRepo, ledgerSvc, transactor, nil, log)
	reconcilerSvc := service.NewReconcilerService(
		orderRepo,
		orderSvc,
		carrierClient,
		redisStorage.NewCarrierCache(rdb),
		redisStorage.NewOrderLock(rdb),
		0, // No status caching: every sync asks the carrier
		time.Minute,
		100,
		log,
	)

	return &testEnv{
		store:      store,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		orderRepo:  orderRepo,
		ledger:     ledgerSvc,
		orders:     orderSvc,
		reconciler: reconcilerSvc,
		carrier:    carrierClient,
		redis:      mr,
	}
}

func (e *testEnv) newBuyer(balance int64) uuid.UUID {
	userID := uuid.New()
	e.store.addWallet(userID, balance)
	return userID
}

func (e *testEnv) newBattery(price int64) *domain.Product {
	p := &domain.Product{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Name:     "VinFast battery pack",
		Category: domain.CategoryBattery,
		Price:    price,
		Status:   domain.ProductStatusActive,
	}
	e.store.addProduct(p)
	return p
}

func (e *testEnv) newVehicle(price, deposit int64) *domain.Product {
	p := &domain.Product{
		ID:            uuid.New(),
		SellerID:      uuid.New(),
		Name:          "VinFast VF 8",
		Category:      domain.CategoryVehicle,
		Price:         price,
		DepositAmount: deposit,
		Status:        domain.ProductStatusActive,
	}
	e.store.addProduct(p)
	return p
}

// shipOrder walks a fresh purchase order to SHIPPED with a tracking number.
func (e *testEnv) shipOrder(t *testing.T, buyerID uuid.UUID, product *domain.Product, trackingNumber string) *domain.Order {
	t.Helper()
	ctx := context.Background()

	order, err := e.orders.PlaceOrder(ctx, ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     product.ID,
		PaymentMethod: "WALLET",
	})
	require.NoError(t, err)

	order, err = e.orders.Ship(ctx, order.OrderNumber, "ghn", trackingNumber, "seller")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, order.Status)
	return order
}
