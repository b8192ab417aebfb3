package service

import (
	"context"
	"fmt"
	"time"

	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/metrics"

	"github.com/rs/zerolog"
)

// carrierStatusMap translates the carrier's vocabulary into order statuses.
// Unmapped values are deliberately absent: an unknown carrier status must
// leave the order untouched.
var carrierStatusMap = map[string]domain.OrderStatus{
	"picking":      domain.OrderStatusShipped,
	"storing":      domain.OrderStatusShipped,
	"transporting": domain.OrderStatusShipped,
	"delivering":   domain.OrderStatusShipped,
	"delivered":    domain.OrderStatusDelivered,
	"returned":     domain.OrderStatusRefunded,
	"return":       domain.OrderStatusRefunded,
	"cancel":       domain.OrderStatusCancelled,
	"cancelled":    domain.OrderStatusCancelled,
}

// ReconcilerServiceImpl aligns internal order state with carrier reports.
// All monetary effects ride through OrderService.Transition, so repeated
// syncs dedupe on the ledger reference instead of refunding twice.
type ReconcilerServiceImpl struct {
	orderRepo    ports.OrderRepository
	orderService ports.OrderService
	carrier      ports.CarrierClient
	cache        ports.CarrierStatusCache
	locker       ports.OrderLocker
	log          zerolog.Logger

	cacheTTL  time.Duration
	lockTTL   time.Duration
	batchSize int
}

// NewReconcilerService creates a new ReconcilerServiceImpl. cache and locker
// may be nil; both features degrade to direct carrier calls.
func NewReconcilerService(
	orderRepo ports.OrderRepository,
	orderService ports.OrderService,
	carrier ports.CarrierClient,
	cache ports.CarrierStatusCache,
	locker ports.OrderLocker,
	cacheTTL, lockTTL time.Duration,
	batchSize int,
	log zerolog.Logger,
) *ReconcilerServiceImpl {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconcilerServiceImpl{
		orderRepo:    orderRepo,
		orderService: orderService,
		carrier:      carrier,
		cache:        cache,
		locker:       locker,
		cacheTTL:     cacheTTL,
		lockTTL:      lockTTL,
		batchSize:    batchSize,
		log:          log,
	}
}

// SyncOrder fetches the carrier's view of one shipped order and applies the
// mapped transition if it differs from the current status.
func (s *ReconcilerServiceImpl) SyncOrder(ctx context.Context, orderNumber string) (*ports.SyncResult, error) {
	order, err := s.orderRepo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound(orderNumber)
	}
	return s.syncOrder(ctx, order)
}

func (s *ReconcilerServiceImpl) syncOrder(ctx context.Context, order *domain.Order) (*ports.SyncResult, error) {
	result := &ports.SyncResult{OrderNumber: order.OrderNumber}

	if order.Status != domain.OrderStatusShipped {
		// Terminal or pre-shipment orders have nothing to reconcile.
		metrics.CarrierSyncTotal.WithLabelValues("skipped").Inc()
		return result, nil
	}
	if order.Shipping.TrackingNumber == "" {
		metrics.CarrierSyncTotal.WithLabelValues("skipped").Inc()
		return result, nil
	}

	shipment, err := s.shipmentStatus(ctx, order.Shipping.TrackingNumber)
	if err != nil {
		metrics.CarrierSyncTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	result.CarrierStatus = shipment.Status

	target, ok := carrierStatusMap[shipment.Status]
	if !ok {
		s.log.Warn().
			Str("order_number", order.OrderNumber).
			Str("carrier_status", shipment.Status).
			Msg("unmapped carrier status, leaving order untouched")
		metrics.CarrierSyncTotal.WithLabelValues("unmapped").Inc()
		return result, nil
	}
	result.MappedStatus = target

	if target == order.Status {
		metrics.CarrierSyncTotal.WithLabelValues("unchanged").Inc()
		return result, nil
	}

	desc := fmt.Sprintf("Carrier reported %q", shipment.Status)
	if _, err := s.orderService.Transition(ctx, order.OrderNumber, target, "carrier-sync", desc); err != nil {
		metrics.CarrierSyncTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result.Transitioned = true
	metrics.CarrierSyncTotal.WithLabelValues("transitioned").Inc()
	s.log.Info().
		Str("order_number", order.OrderNumber).
		Str("carrier_status", shipment.Status).
		Str("status", string(target)).
		Msg("order reconciled with carrier")
	return result, nil
}

// shipmentStatus consults the cache before hitting the carrier.
func (s *ReconcilerServiceImpl) shipmentStatus(ctx context.Context, trackingNumber string) (*ports.ShipmentStatus, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, trackingNumber)
		if err != nil {
			s.log.Warn().Err(err).Str("tracking_number", trackingNumber).Msg("carrier cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	shipment, err := s.carrier.GetShipmentStatus(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, trackingNumber, shipment, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("tracking_number", trackingNumber).Msg("carrier cache write failed")
		}
	}
	return shipment, nil
}

// SyncAll reconciles every SHIPPED order. Per-order failures are logged and
// skipped so one bad tracking number cannot stall the batch.
func (s *ReconcilerServiceImpl) SyncAll(ctx context.Context) ([]ports.SyncResult, error) {
	orders, err := s.orderRepo.ListByStatus(ctx, domain.OrderStatusShipped, s.batchSize)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list shipped orders: %w", err))
	}

	results := make([]ports.SyncResult, 0, len(orders))
	for i := range orders {
		order := &orders[i]
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if !s.acquire(ctx, order.OrderNumber) {
			continue
		}
		result, err := s.syncOrder(ctx, order)
		s.release(ctx, order.OrderNumber)
		if err != nil {
			s.log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("order sync failed")
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// acquire is best-effort: a locker failure falls through to syncing anyway,
// since the transition's row lock is the correctness mechanism.
func (s *ReconcilerServiceImpl) acquire(ctx context.Context, orderNumber string) bool {
	if s.locker == nil {
		return true
	}
	ok, err := s.locker.TryLock(ctx, orderNumber, s.lockTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("order_number", orderNumber).Msg("order lock failed, syncing unlocked")
		return true
	}
	return ok
}

func (s *ReconcilerServiceImpl) release(ctx context.Context, orderNumber string) {
	if s.locker == nil {
		return
	}
	if err := s.locker.Unlock(ctx, orderNumber); err != nil {
		s.log.Warn().Err(err).Str("order_number", orderNumber).Msg("order unlock failed")
	}
}
