package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore backs every in-memory repo with one mutex so cross-repo
// operations (wallet debit + ledger insert) stay consistent under the
// concurrency tests. The wallet balance check runs under the lock, which
// mirrors the conditional UPDATE the real repo issues.
type memStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]*domain.Wallet
	entries  []*domain.LedgerEntry
	orders   map[uuid.UUID]*domain.Order
	timeline map[uuid.UUID][]domain.TimelineEntry
	products map[uuid.UUID]*domain.Product
}

func newMemStore() *memStore {
	return &memStore{
		wallets:  make(map[uuid.UUID]*domain.Wallet),
		orders:   make(map[uuid.UUID]*domain.Order),
		timeline: make(map[uuid.UUID][]domain.TimelineEntry),
		products: make(map[uuid.UUID]*domain.Product),
	}
}

func (s *memStore) addWallet(userID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[userID] = &domain.Wallet{
		ID:      uuid.New(),
		UserID:  userID,
		Balance: balance,
	}
}

func (s *memStore) addProduct(p *domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *memStore) orderByNumber(orderNumber string) *domain.Order {
	for _, o := range s.orders {
		if o.OrderNumber == orderNumber {
			return o
		}
	}
	return nil
}

func (s *memStore) entryByKey(userID uuid.UUID, entryType domain.EntryType, reference string) *domain.LedgerEntry {
	for _, e := range s.entries {
		if e.UserID == userID && e.EntryType == entryType && e.Reference == reference {
			return e
		}
	}
	return nil
}

// countEntries returns how many ledger entries match the reference prefix
// and type, used by assertions on refund/rollback dedup.
func (s *memStore) countEntries(entryType domain.EntryType, referencePrefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.EntryType == entryType && strings.HasPrefix(e.Reference, referencePrefix) {
			n++
		}
	}
	return n
}

func (s *memStore) balance(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return 0
	}
	return w.Balance
}

// --- Wallet repo ---

type memWalletRepo struct{ store *memStore }

func (r *memWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.wallets[w.UserID] = w
	return nil
}

func (r *memWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWalletRepo) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, trackDeposit bool) (*domain.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.wallets[userID]
	if !ok {
		return nil, nil
	}
	w.Balance += amount
	if trackDeposit {
		w.TotalDeposited += amount
	}
	cp := *w
	return &cp, nil
}

func (r *memWalletRepo) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*domain.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.wallets[userID]
	if !ok || w.Balance < amount {
		return nil, nil
	}
	w.Balance -= amount
	w.TotalSpent += amount
	cp := *w
	return &cp, nil
}

// --- Ledger repo ---

type memLedgerRepo struct{ store *memStore }

func (r *memLedgerRepo) Insert(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if entry.Reference != "" {
		if existing := r.store.entryByKey(entry.UserID, entry.EntryType, entry.Reference); existing != nil {
			return &pgconn.PgError{Code: "23505", ConstraintName: "idx_ledger_user_type_reference"}
		}
	}
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.entries = append(r.store.entries, &cp)
	return nil
}

func (r *memLedgerRepo) GetByReference(ctx context.Context, userID uuid.UUID, entryType domain.EntryType, reference string) (*domain.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e := r.store.entryByKey(userID, entryType, reference)
	if e == nil {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *memLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []domain.LedgerEntry
	// Newest first
	for i := len(r.store.entries) - 1; i >= 0; i-- {
		if r.store.entries[i].UserID == userID {
			result = append(result, *r.store.entries[i])
		}
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memLedgerRepo) ListOrphanedDebits(ctx context.Context, cutoff time.Time) ([]domain.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []domain.LedgerEntry
	for _, e := range r.store.entries {
		if e.EntryType != domain.EntryTypePurchase || e.Status != domain.EntryStatusCompleted {
			continue
		}
		if e.Reference == "" || !e.CreatedAt.Before(cutoff) {
			continue
		}
		if r.store.orderByNumber(e.Reference) != nil {
			continue
		}
		if r.store.entryByKey(e.UserID, domain.EntryTypeRefund, domain.RollbackReference(e.Reference)) != nil {
			continue
		}
		result = append(result, *e)
	}
	return result, nil
}

// --- Order repo ---

type memOrderRepo struct{ store *memStore }

func (r *memOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.orderByNumber(order.OrderNumber) != nil {
		return &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	}
	cp := *order
	r.store.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o := r.store.orderByNumber(orderNumber)
	if o == nil {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, orderNumber string) (*domain.Order, error) {
	return r.GetByNumber(ctx, orderNumber)
}

func (r *memOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.OrderStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (r *memOrderRepo) UpdateShipping(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, shipping domain.ShippingInfo) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.Shipping = shipping
	return nil
}

func (r *memOrderRepo) UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.PaymentStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.Payment.Status = status
	return nil
}

func (r *memOrderRepo) AppendTimeline(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry.ID = int64(len(r.store.timeline[entry.OrderID]) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.store.timeline[entry.OrderID] = append(r.store.timeline[entry.OrderID], *entry)
	return nil
}

func (r *memOrderRepo) GetTimeline(ctx context.Context, orderID uuid.UUID) ([]domain.TimelineEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]domain.TimelineEntry(nil), r.store.timeline[orderID]...), nil
}

func (r *memOrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []domain.Order
	for _, o := range r.store.orders {
		if o.Status == status {
			result = append(result, *o)
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// --- Product repo ---

type memProductRepo struct{ store *memStore }

func (r *memProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.ProductStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[id]
	if !ok {
		return fmt.Errorf("product %s not found", id)
	}
	p.Status = status
	return nil
}

// --- Transactor (no-op tx) ---

type memTransactor struct{}

func (t *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
