package postgres

import (
	"context"
	"testing"
	"time"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(userID uuid.UUID) *domain.LedgerEntry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.LedgerEntry{
		ID:            uuid.New(),
		UserID:        userID,
		EntryType:     domain.EntryTypePurchase,
		Amount:        500_000,
		BalanceBefore: 1_000_000,
		BalanceAfter:  500_000,
		Status:        domain.EntryStatusCompleted,
		Reference:     "ORD-01ABC",
		Description:   "Deposit for VF e34",
		Metadata:      map[string]string{"product_id": uuid.NewString()},
		CreatedAt:     now,
	}
}

func ledgerTestColumns() []string {
	return []string{"id", "user_id", "entry_type", "amount", "balance_before", "balance_after",
		"status", "reference", "description", "metadata", "created_at"}
}

func entryRow(e *domain.LedgerEntry) *pgxmock.Rows {
	return pgxmock.NewRows(ledgerTestColumns()).AddRow(
		e.ID, e.UserID, e.EntryType, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.Status, &e.Reference, e.Description, e.Metadata, e.CreatedAt,
	)
}

func TestLedgerRepo_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestEntry(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(e.ID, e.UserID, e.EntryType, e.Amount, e.BalanceBefore, e.BalanceAfter,
			e.Status, e.Reference, e.Description, e.Metadata, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Insert(context.Background(), tx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_GetByReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestEntry(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs(e.UserID, e.EntryType, e.Reference).
		WillReturnRows(entryRow(e))

	result, err := repo.GetByReference(context.Background(), e.UserID, e.EntryType, e.Reference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, e.ID, result.ID)
	assert.Equal(t, "ORD-01ABC", result.Reference)
}

func TestLedgerRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	userID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs(userID, domain.EntryTypeRefund, "ORD-NOPE").
		WillReturnRows(pgxmock.NewRows(ledgerTestColumns()))

	result, err := repo.GetByReference(context.Background(), userID, domain.EntryTypeRefund, "ORD-NOPE")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLedgerRepo_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	userID := uuid.New()
	first := newTestEntry(userID)
	second := newTestEntry(userID)
	second.Reference = "ORD-01DEF"

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs(userID, 20, 0).
		WillReturnRows(entryRow(first).AddRow(
			second.ID, second.UserID, second.EntryType, second.Amount,
			second.BalanceBefore, second.BalanceAfter, second.Status,
			&second.Reference, second.Description, second.Metadata, second.CreatedAt,
		))

	entries, err := repo.ListByUser(context.Background(), userID, 20, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ORD-01DEF", entries[1].Reference)
}

func TestLedgerRepo_ListOrphanedDebits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestEntry(uuid.New())
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries le").
		WithArgs(domain.EntryTypePurchase, domain.EntryStatusCompleted, cutoff, domain.EntryTypeRefund).
		WillReturnRows(entryRow(e))

	entries, err := repo.ListOrphanedDebits(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.Reference, entries[0].Reference)
}
