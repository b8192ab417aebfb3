package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's spendable balance in VND minor units.
// The balance is only ever mutated through the ledger service, and always
// together with exactly one ledger entry in the same database transaction.
type Wallet struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Balance        int64     `json:"balance"`
	TotalDeposited int64     `json:"total_deposited"`
	TotalSpent     int64     `json:"total_spent"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryTypeDeposit    EntryType = "DEPOSIT"
	EntryTypeWithdraw   EntryType = "WITHDRAW"
	EntryTypePurchase   EntryType = "PURCHASE"
	EntryTypeRefund     EntryType = "REFUND"
	EntryTypeCommission EntryType = "COMMISSION"
	EntryTypeBonus      EntryType = "BONUS"
)

// IsCredit reports whether entries of this type add to the balance.
func (t EntryType) IsCredit() bool {
	switch t {
	case EntryTypeDeposit, EntryTypeRefund, EntryTypeBonus, EntryTypeCommission:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
	EntryStatusCancelled EntryStatus = "CANCELLED"
)

// LedgerEntry is an immutable record of one wallet balance change.
// A partial unique index on (user_id, entry_type, reference) guarantees
// at most one entry of a given type per business event per user; retried
// reconciliations hit the index instead of moving money twice.
type LedgerEntry struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	EntryType     EntryType         `json:"entry_type"`
	Amount        int64             `json:"amount"` // Always positive
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Status        EntryStatus       `json:"status"`
	Reference     string            `json:"reference,omitempty"` // Business correlation id, e.g. order number
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// SignedAmount returns the amount with the sign it contributes to the balance.
func (e *LedgerEntry) SignedAmount() int64 {
	if e.EntryType.IsCredit() {
		return e.Amount
	}
	return -e.Amount
}

// RollbackReference builds the reference used by a compensating credit so a
// retried rollback dedupes against the original instead of double-crediting.
func RollbackReference(reference string) string {
	return "ROLLBACK-" + reference
}
