package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ev-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository. Entries are append-only;
// there is no update or delete path here on purpose.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, user_id, entry_type, amount, balance_before, balance_after, status, reference, description, metadata, created_at`

// Insert appends a ledger entry within a transaction. A duplicate
// (user_id, entry_type, reference) violates the partial unique index and
// surfaces as a pg unique-violation error for the service to resolve.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, user_id, entry_type, amount, balance_before, balance_after,
		status, reference, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.UserID, e.EntryType, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.Status, e.Reference, e.Description, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByReference fetches the entry a referenced movement produced, if any.
func (r *LedgerRepo) GetByReference(ctx context.Context, userID uuid.UUID, entryType domain.EntryType, reference string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE user_id = $1 AND entry_type = $2 AND reference = $3`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, userID, entryType, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry by reference: %w", err)
	}
	return e, nil
}

// ListByUser returns a user's entries, newest first.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListOrphanedDebits returns completed purchase debits older than cutoff
// whose reference matches no order and that have no compensating ROLLBACK
// credit yet. These are the footprints of a saga that died between the
// debit and the order insert.
func (r *LedgerRepo) ListOrphanedDebits(ctx context.Context, cutoff time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + qualify(ledgerColumns, "le.") + ` FROM ledger_entries le
		WHERE le.entry_type = $1
		  AND le.status = $2
		  AND le.created_at < $3
		  AND le.reference IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM orders o WHERE o.order_number = le.reference
		  )
		  AND NOT EXISTS (
		      SELECT 1 FROM ledger_entries c
		      WHERE c.user_id = le.user_id
		        AND c.entry_type = $4
		        AND c.reference = 'ROLLBACK-' || le.reference
		  )
		ORDER BY le.created_at`

	rows, err := r.pool.Query(ctx, query,
		domain.EntryTypePurchase, domain.EntryStatusCompleted, cutoff, domain.EntryTypeRefund,
	)
	if err != nil {
		return nil, fmt.Errorf("list orphaned debits: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	var reference *string
	err := row.Scan(
		&e.ID, &e.UserID, &e.EntryType, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
		&e.Status, &reference, &e.Description, &e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reference != nil {
		e.Reference = *reference
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(columns, prefix string) string {
	return prefix + strings.ReplaceAll(columns, ", ", ", "+prefix)
}
