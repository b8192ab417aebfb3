// Package worker runs the background loops: periodic carrier
// reconciliation and the orphaned-debit sweeper.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/metrics"
)

// ReconcileWorker periodically syncs every shipped order against the
// carrier. Each pass is independently idempotent, so a missed or doubled
// tick is harmless.
type ReconcileWorker struct {
	reconciler ports.ReconcilerService
	interval   time.Duration
	log        zerolog.Logger
}

func NewReconcileWorker(reconciler ports.ReconcilerService, interval time.Duration, log zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   interval,
		log:        log.With().Str("component", "reconcile_worker").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting carrier reconcile worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("carrier reconcile worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	results, err := w.reconciler.SyncAll(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("bulk carrier sync failed")
		return
	}

	transitioned := 0
	for _, r := range results {
		if r.Transitioned {
			transitioned++
		}
	}
	w.log.Info().
		Int("synced", len(results)).
		Int("transitioned", transitioned).
		Msg("bulk carrier sync complete")
}

// OrphanSweeper refunds purchase debits whose order row never appeared,
// i.e. the order saga died after taking the money. Grace keeps it from
// racing an in-flight order creation.
type OrphanSweeper struct {
	ledgerRepo ports.LedgerRepository
	ledger     ports.LedgerService
	grace      time.Duration
	interval   time.Duration
	log        zerolog.Logger
}

func NewOrphanSweeper(
	ledgerRepo ports.LedgerRepository,
	ledger ports.LedgerService,
	grace, interval time.Duration,
	log zerolog.Logger,
) *OrphanSweeper {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &OrphanSweeper{
		ledgerRepo: ledgerRepo,
		ledger:     ledger,
		grace:      grace,
		interval:   interval,
		log:        log.With().Str("component", "orphan_sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *OrphanSweeper) Run(ctx context.Context) {
	s.log.Info().
		Dur("interval", s.interval).
		Dur("grace", s.grace).
		Msg("starting orphaned debit sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("orphaned debit sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep pass. Exported so an operator endpoint or
// test can trigger it directly.
func (s *OrphanSweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.grace)
	orphans, err := s.ledgerRepo.ListOrphanedDebits(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list orphaned debits")
		return
	}
	if len(orphans) == 0 {
		return
	}

	s.log.Warn().Int("count", len(orphans)).Msg("found orphaned debits")

	for _, orphan := range orphans {
		if ctx.Err() != nil {
			return
		}
		s.compensate(ctx, orphan)
	}
}

func (s *OrphanSweeper) compensate(ctx context.Context, orphan domain.LedgerEntry) {
	// The rollback reference makes the sweep idempotent: a second pass
	// over the same orphan dedupes on the ledger.
	_, applied, err := s.ledger.Credit(ctx, ports.MoveRequest{
		UserID:      orphan.UserID,
		Amount:      orphan.Amount,
		EntryType:   domain.EntryTypeRefund,
		Reference:   domain.RollbackReference(orphan.Reference),
		Description: "Automatic refund of orphaned debit " + orphan.Reference,
	})
	if err != nil {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		s.log.Error().Err(err).
			Str("reference", orphan.Reference).
			Str("user_id", orphan.UserID.String()).
			Int64("amount", orphan.Amount).
			Bool("manual_reconciliation_required", true).
			Msg("failed to refund orphaned debit")
		return
	}
	if !applied {
		return
	}

	metrics.CompensationsTotal.WithLabelValues("applied").Inc()
	s.log.Info().
		Str("reference", orphan.Reference).
		Str("user_id", orphan.UserID.String()).
		Int64("amount", orphan.Amount).
		Msg("refunded orphaned debit")
}
