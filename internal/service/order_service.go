package service

import (
	"context"
	"fmt"
	"time"

	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Marketplace commission withheld from the seller, in percent.
const commissionPct = 5

// OrderServiceImpl implements ports.OrderService: it owns the order state
// machine and is the only caller of the ledger for order money movement.
type OrderServiceImpl struct {
	orderRepo   ports.OrderRepository
	productRepo ports.ProductRepository
	ledger      ports.LedgerService
	transactor  ports.DBTransactor
	publisher   ports.EventPublisher
	log         zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl.
func NewOrderService(
	orderRepo ports.OrderRepository,
	productRepo ports.ProductRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	publisher ports.EventPublisher,
	log zerolog.Logger,
) *OrderServiceImpl {
	return &OrderServiceImpl{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		ledger:      ledger,
		transactor:  transactor,
		publisher:   publisher,
		log:         log,
	}
}

// PlaceOrder routes on product category: batteries run the full purchase
// flow in a single transaction, vehicles run the two-step deposit saga.
func (s *OrderServiceImpl) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (*domain.Order, error) {
	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get product: %w", err))
	}
	if product == nil || !product.Available() {
		return nil, apperror.ErrProductUnavailable()
	}
	if product.SellerID == req.BuyerID {
		return nil, apperror.Validation("cannot buy your own listing")
	}

	switch product.Category {
	case domain.CategoryVehicle:
		return s.placeDeposit(ctx, req, product)
	default:
		return s.placePurchase(ctx, req, product)
	}
}

// placePurchase debits the buyer, creates the PENDING order and marks the
// product sold, all in one transaction: a ledger failure means no order.
func (s *OrderServiceImpl) placePurchase(ctx context.Context, req ports.PlaceOrderRequest, product *domain.Product) (*domain.Order, error) {
	order := s.buildOrder(req, product)
	order.Status = domain.OrderStatusPending

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, _, err := s.ledger.DebitTx(ctx, tx, ports.MoveRequest{
		UserID:      req.BuyerID,
		Amount:      order.FinalAmount,
		EntryType:   domain.EntryTypePurchase,
		Reference:   order.OrderNumber,
		Description: fmt.Sprintf("Purchase %s", product.Name),
		Metadata:    map[string]string{"product_id": product.ID.String()},
	}); err != nil {
		return nil, err
	}

	if err := s.createOrderRecords(ctx, tx, order, "buyer", "Order placed and paid from wallet"); err != nil {
		return nil, err
	}
	if err := s.productRepo.UpdateStatus(ctx, tx, product.ID, domain.ProductStatusSold); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update product status: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(product.Category)).Inc()
	s.publish(ctx, domain.OrderEvent{
		EventType:   domain.EventOrderCreated,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Actor:       "buyer",
		Amount:      order.FinalAmount,
		OccurredAt:  time.Now().UTC(),
	})

	s.log.Info().
		Str("order_number", order.OrderNumber).
		Str("buyer_id", req.BuyerID.String()).
		Int64("final_amount", order.FinalAmount).
		Msg("purchase order placed")

	return order, nil
}

// placeDeposit is the vehicle saga: (a) debit the deposit in its own
// transaction, (b) create the order and flip the product. A failure in (b)
// is compensated with a ROLLBACK credit before the error surfaces.
func (s *OrderServiceImpl) placeDeposit(ctx context.Context, req ports.PlaceOrderRequest, product *domain.Product) (*domain.Order, error) {
	if product.DepositAmount <= 0 {
		return nil, apperror.Validation("product has no deposit amount configured")
	}

	order := s.buildOrder(req, product)
	order.Status = domain.OrderStatusDeposit
	order.UnitPrice = product.Price
	order.TotalAmount = product.DepositAmount
	order.ShippingFee = 0
	order.Commission = 0
	order.FinalAmount = product.DepositAmount

	// Step (a): take the deposit.
	if _, _, err := s.ledger.Debit(ctx, ports.MoveRequest{
		UserID:      req.BuyerID,
		Amount:      order.FinalAmount,
		EntryType:   domain.EntryTypePurchase,
		Reference:   order.OrderNumber,
		Description: fmt.Sprintf("Deposit for %s", product.Name),
		Metadata:    map[string]string{"product_id": product.ID.String()},
	}); err != nil {
		return nil, err
	}

	// Step (b): create the order. Not the same transaction as (a).
	if err := s.createDepositRecords(ctx, order, product); err != nil {
		return nil, s.compensateDeposit(ctx, req.BuyerID, order, err)
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(product.Category)).Inc()
	s.publish(ctx, domain.OrderEvent{
		EventType:   domain.EventOrderCreated,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Actor:       "buyer",
		Amount:      order.FinalAmount,
		OccurredAt:  time.Now().UTC(),
	})

	s.log.Info().
		Str("order_number", order.OrderNumber).
		Str("buyer_id", req.BuyerID.String()).
		Int64("deposit", order.FinalAmount).
		Msg("deposit order placed")

	return order, nil
}

func (s *OrderServiceImpl) createDepositRecords(ctx context.Context, order *domain.Order, product *domain.Product) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.createOrderRecords(ctx, tx, order, "buyer", "Deposit held for in-person transaction"); err != nil {
		return err
	}
	if err := s.productRepo.UpdateStatus(ctx, tx, product.ID, domain.ProductStatusDeposit); err != nil {
		return apperror.InternalError(fmt.Errorf("update product status: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// compensateDeposit reverses the deposit debit after a failed step (b).
// The ROLLBACK reference makes a retried compensation dedupe instead of
// crediting twice.
func (s *OrderServiceImpl) compensateDeposit(ctx context.Context, buyerID uuid.UUID, order *domain.Order, cause error) error {
	_, _, compErr := s.ledger.Credit(ctx, ports.MoveRequest{
		UserID:      buyerID,
		Amount:      order.FinalAmount,
		EntryType:   domain.EntryTypeRefund,
		Reference:   domain.RollbackReference(order.OrderNumber),
		Description: fmt.Sprintf("Rollback of deposit %s", order.OrderNumber),
	})
	if compErr != nil {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		s.log.Error().
			Err(compErr).
			Str("order_number", order.OrderNumber).
			Str("buyer_id", buyerID.String()).
			Int64("amount", order.FinalAmount).
			Bool("manual_reconciliation_required", true).
			Msg("deposit compensation failed: wallet debited with no order")
		return apperror.ErrCompensationFailure(order.OrderNumber, compErr)
	}

	metrics.CompensationsTotal.WithLabelValues("applied").Inc()
	s.log.Warn().
		Err(cause).
		Str("order_number", order.OrderNumber).
		Msg("deposit order creation failed, wallet debit rolled back")
	return cause
}

// GetOrder returns an order with its timeline.
func (s *OrderServiceImpl) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound(orderNumber)
	}
	timeline, err := s.orderRepo.GetTimeline(ctx, order.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get timeline: %w", err))
	}
	order.Timeline = timeline
	return order, nil
}

// Transition moves an order to target. The row lock, the ledger effect,
// the timeline entry and the status write commit or abort together.
func (s *OrderServiceImpl) Transition(ctx context.Context, orderNumber string, target domain.OrderStatus, actor, description string) (*domain.Order, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByNumberForUpdate(ctx, tx, orderNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound(orderNumber)
	}

	if err := s.applyTransition(ctx, tx, order, target, actor, description); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterTransition(ctx, order, target, actor)
	return order, nil
}

// Ship records the carrier handoff and moves the order to SHIPPED.
func (s *OrderServiceImpl) Ship(ctx context.Context, orderNumber, carrier, trackingNumber, actor string) (*domain.Order, error) {
	if carrier == "" || trackingNumber == "" {
		return nil, apperror.Validation("carrier and tracking number are required")
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByNumberForUpdate(ctx, tx, orderNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound(orderNumber)
	}

	now := time.Now().UTC()
	order.Shipping.Carrier = carrier
	order.Shipping.TrackingNumber = trackingNumber
	order.Shipping.ShippedAt = &now
	if err := s.orderRepo.UpdateShipping(ctx, tx, order.ID, order.Shipping); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update shipping: %w", err))
	}

	desc := fmt.Sprintf("Handed to %s, tracking %s", carrier, trackingNumber)
	if err := s.applyTransition(ctx, tx, order, domain.OrderStatusShipped, actor, desc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterTransition(ctx, order, domain.OrderStatusShipped, actor)
	return order, nil
}

// Cancel moves any non-terminal order to CANCELLED, refunding captured
// payment.
func (s *OrderServiceImpl) Cancel(ctx context.Context, orderNumber, actor, reason string) (*domain.Order, error) {
	if reason == "" {
		reason = "Order cancelled"
	}
	return s.Transition(ctx, orderNumber, domain.OrderStatusCancelled, actor, reason)
}

// applyTransition validates against the transition table and applies the
// ledger effect, product side effect, timeline entry and status write
// within the caller's transaction. A ledger failure aborts everything.
func (s *OrderServiceImpl) applyTransition(ctx context.Context, tx pgx.Tx, order *domain.Order, target domain.OrderStatus, actor, description string) error {
	if !domain.CanTransition(order.Status, target) {
		return apperror.ErrInvalidTransition(string(order.Status), string(target))
	}

	if refund := s.refundFor(order, target); refund > 0 {
		_, applied, err := s.ledger.CreditTx(ctx, tx, ports.MoveRequest{
			UserID:      order.BuyerID,
			Amount:      refund,
			EntryType:   domain.EntryTypeRefund,
			Reference:   order.OrderNumber,
			Description: fmt.Sprintf("Refund for order %s (%s)", order.OrderNumber, target),
		})
		if err != nil {
			return err
		}
		if applied {
			metrics.RefundsTotal.Inc()
		}
		if err := s.orderRepo.UpdatePaymentStatus(ctx, tx, order.ID, domain.PaymentStatusRefunded); err != nil {
			return apperror.InternalError(fmt.Errorf("update payment status: %w", err))
		}
		order.Payment.Status = domain.PaymentStatusRefunded
	}

	if err := s.applyProductEffect(ctx, tx, order, target); err != nil {
		return err
	}

	if target == domain.OrderStatusDelivered {
		now := time.Now().UTC()
		order.Shipping.DeliveredAt = &now
		if err := s.orderRepo.UpdateShipping(ctx, tx, order.ID, order.Shipping); err != nil {
			return apperror.InternalError(fmt.Errorf("update shipping: %w", err))
		}
	}

	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, target); err != nil {
		return apperror.InternalError(fmt.Errorf("update status: %w", err))
	}
	if err := s.orderRepo.AppendTimeline(ctx, tx, &domain.TimelineEntry{
		OrderID:     order.ID,
		Status:      target,
		Description: description,
		UpdatedBy:   actor,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append timeline: %w", err))
	}

	order.Status = target
	return nil
}

// refundFor returns the amount to credit back for this transition, zero
// when it has no monetary effect.
func (s *OrderServiceImpl) refundFor(order *domain.Order, target domain.OrderStatus) int64 {
	switch target {
	case domain.OrderStatusCancelled:
		if order.PaymentCaptured() {
			return order.RefundAmount()
		}
	case domain.OrderStatusRefunded:
		return order.FinalAmount
	}
	return 0
}

// applyProductEffect releases or consumes the listing as the order moves.
func (s *OrderServiceImpl) applyProductEffect(ctx context.Context, tx pgx.Tx, order *domain.Order, target domain.OrderStatus) error {
	var status domain.ProductStatus
	switch target {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		status = domain.ProductStatusActive
	case domain.OrderStatusDelivered:
		status = domain.ProductStatusSold
	default:
		return nil
	}
	if err := s.productRepo.UpdateStatus(ctx, tx, order.ProductID, status); err != nil {
		return apperror.InternalError(fmt.Errorf("update product status: %w", err))
	}
	return nil
}

func (s *OrderServiceImpl) afterTransition(ctx context.Context, order *domain.Order, target domain.OrderStatus, actor string) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(target)).Inc()

	eventType := domain.EventOrderStatus
	if target == domain.OrderStatusRefunded {
		eventType = domain.EventOrderRefunded
	}
	s.publish(ctx, domain.OrderEvent{
		EventType:   eventType,
		OrderNumber: order.OrderNumber,
		Status:      target,
		Actor:       actor,
		OccurredAt:  time.Now().UTC(),
	})

	s.log.Info().
		Str("order_number", order.OrderNumber).
		Str("status", string(target)).
		Str("actor", actor).
		Msg("order transitioned")
}

// publish is best-effort: event channel failures never fail the flow.
func (s *OrderServiceImpl) publish(ctx context.Context, event domain.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("order_number", event.OrderNumber).Msg("failed to publish order event")
	}
}

func (s *OrderServiceImpl) buildOrder(req ports.PlaceOrderRequest, product *domain.Product) *domain.Order {
	total := product.Price
	now := time.Now().UTC()
	return &domain.Order{
		ID:          uuid.New(),
		OrderNumber: domain.NewOrderNumber(),
		BuyerID:     req.BuyerID,
		SellerID:    product.SellerID,
		ProductID:   product.ID,
		UnitPrice:   product.Price,
		TotalAmount: total,
		ShippingFee: req.ShippingFee,
		Commission:  total * commissionPct / 100,
		FinalAmount: total + req.ShippingFee,
		Payment: domain.PaymentInfo{
			Method: req.PaymentMethod,
			Status: domain.PaymentStatusCaptured,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// createOrderRecords inserts the order row and its first timeline entry.
func (s *OrderServiceImpl) createOrderRecords(ctx context.Context, tx pgx.Tx, order *domain.Order, actor, description string) error {
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return apperror.InternalError(fmt.Errorf("create order: %w", err))
	}
	if err := s.orderRepo.AppendTimeline(ctx, tx, &domain.TimelineEntry{
		OrderID:     order.ID,
		Status:      order.Status,
		Description: description,
		UpdatedBy:   actor,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return apperror.InternalError(fmt.Errorf("append timeline: %w", err))
	}
	return nil
}
