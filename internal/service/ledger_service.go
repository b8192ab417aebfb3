package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const pgUniqueViolation = "23505"

// LedgerServiceImpl implements ports.LedgerService. Every movement writes
// the wallet balance and the ledger entry in one database transaction; the
// (user_id, entry_type, reference) unique index turns retries into
// "already applied" instead of double movements.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		log:        log,
	}
}

// Credit adds funds in its own transaction.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.MoveRequest) (*domain.LedgerEntry, bool, error) {
	return s.move(ctx, req, true)
}

// Debit removes funds in its own transaction.
func (s *LedgerServiceImpl) Debit(ctx context.Context, req ports.MoveRequest) (*domain.LedgerEntry, bool, error) {
	return s.move(ctx, req, false)
}

func (s *LedgerServiceImpl) move(ctx context.Context, req ports.MoveRequest, credit bool) (*domain.LedgerEntry, bool, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		entry   *domain.LedgerEntry
		applied bool
	)
	if credit {
		entry, applied, err = s.CreditTx(ctx, tx, req)
	} else {
		entry, applied, err = s.DebitTx(ctx, tx, req)
	}
	if err != nil {
		// Two movements raced past the duplicate pre-check; the index
		// decided. The loser's balance update rolled back with its tx,
		// so report the surviving entry as already applied.
		if isUniqueViolation(err) {
			return s.alreadyApplied(ctx, req)
		}
		return nil, false, err
	}
	if !applied {
		return entry, false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(req.EntryType)).Inc()
	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("entry_type", string(req.EntryType)).
		Str("reference", req.Reference).
		Int64("amount", req.Amount).
		Int64("balance_after", entry.BalanceAfter).
		Msg("ledger entry written")

	return entry, true, nil
}

// CreditTx applies a credit inside a caller-owned transaction.
func (s *LedgerServiceImpl) CreditTx(ctx context.Context, tx pgx.Tx, req ports.MoveRequest) (*domain.LedgerEntry, bool, error) {
	if req.Amount <= 0 {
		return nil, false, apperror.Validation("amount must be positive")
	}

	if existing, err := s.findExisting(ctx, req); err != nil || existing != nil {
		return existing, false, err
	}

	trackDeposit := req.EntryType == domain.EntryTypeDeposit
	wallet, err := s.walletRepo.Credit(ctx, tx, req.UserID, req.Amount, trackDeposit)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
	}
	if wallet == nil {
		return nil, false, apperror.ErrWalletNotFound()
	}

	entry := s.buildEntry(req, wallet.Balance-req.Amount, wallet.Balance)
	if err := s.ledgerRepo.Insert(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			return nil, false, err
		}
		return nil, false, apperror.InternalError(fmt.Errorf("insert ledger entry: %w", err))
	}
	return entry, true, nil
}

// DebitTx applies a debit inside a caller-owned transaction. The balance
// check is a conditional update in the database, never a read followed by
// a write: concurrent debits for the last of a user's funds resolve to
// exactly one winner.
func (s *LedgerServiceImpl) DebitTx(ctx context.Context, tx pgx.Tx, req ports.MoveRequest) (*domain.LedgerEntry, bool, error) {
	if req.Amount <= 0 {
		return nil, false, apperror.Validation("amount must be positive")
	}

	if existing, err := s.findExisting(ctx, req); err != nil || existing != nil {
		return existing, false, err
	}

	wallet, err := s.walletRepo.Debit(ctx, tx, req.UserID, req.Amount)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}
	if wallet == nil {
		// Condition failed: either no wallet or not enough in it.
		w, err := s.walletRepo.GetByUserID(ctx, req.UserID)
		if err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
		}
		if w == nil {
			return nil, false, apperror.ErrWalletNotFound()
		}
		return nil, false, apperror.ErrInsufficientFunds()
	}

	entry := s.buildEntry(req, wallet.Balance+req.Amount, wallet.Balance)
	if err := s.ledgerRepo.Insert(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			return nil, false, err
		}
		return nil, false, apperror.InternalError(fmt.Errorf("insert ledger entry: %w", err))
	}
	return entry, true, nil
}

// GetBalance returns the user's current wallet balance.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return 0, apperror.ErrWalletNotFound()
	}
	return wallet.Balance, nil
}

// ListEntries returns the user's ledger history, newest first.
func (s *LedgerServiceImpl) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := s.ledgerRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	return entries, nil
}

// findExisting returns the entry a referenced movement already produced,
// if any. Movements without a reference are never deduplicated.
func (s *LedgerServiceImpl) findExisting(ctx context.Context, req ports.MoveRequest) (*domain.LedgerEntry, error) {
	if req.Reference == "" {
		return nil, nil
	}
	existing, err := s.ledgerRepo.GetByReference(ctx, req.UserID, req.EntryType, req.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check reference: %w", err))
	}
	if existing != nil {
		s.log.Debug().
			Str("user_id", req.UserID.String()).
			Str("reference", req.Reference).
			Str("entry_type", string(req.EntryType)).
			Msg("ledger movement already applied")
	}
	return existing, nil
}

// alreadyApplied resolves a lost insert race to the surviving entry.
func (s *LedgerServiceImpl) alreadyApplied(ctx context.Context, req ports.MoveRequest) (*domain.LedgerEntry, bool, error) {
	existing, err := s.ledgerRepo.GetByReference(ctx, req.UserID, req.EntryType, req.Reference)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("fetch surviving entry: %w", err))
	}
	if existing == nil {
		return nil, false, apperror.InternalError(fmt.Errorf("unique violation for %s but no entry found", req.Reference))
	}
	return existing, false, nil
}

func (s *LedgerServiceImpl) buildEntry(req ports.MoveRequest, before, after int64) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:            uuid.New(),
		UserID:        req.UserID,
		EntryType:     req.EntryType,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        domain.EntryStatusCompleted,
		Reference:     req.Reference,
		Description:   req.Description,
		Metadata:      req.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
}

// isUniqueViolation checks for a PostgreSQL duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
