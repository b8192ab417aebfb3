package handler

import (
	"ev-marketplace/internal/adapter/http/dto"
	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler serves the order lifecycle endpoints.
type OrderHandler struct {
	orderSvc ports.OrderService
}

func NewOrderHandler(orderSvc ports.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// PlaceOrder handles POST /api/v1/orders.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	buyerID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid product_id"))
		return
	}

	order, err := h.orderSvc.PlaceOrder(c.Request.Context(), ports.PlaceOrderRequest{
		BuyerID:       buyerID,
		ProductID:     productID,
		PaymentMethod: req.PaymentMethod,
		ShippingFee:   req.ShippingFee,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToOrderResponse(order))
}

// GetOrder handles GET /api/v1/orders/:number.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderSvc.GetOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToOrderResponse(order))
}

// Transition handles POST /api/v1/orders/:number/transition.
func (h *OrderHandler) Transition(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	target := domain.OrderStatus(req.Status)
	switch target {
	case domain.OrderStatusConfirmed, domain.OrderStatusDelivered,
		domain.OrderStatusCancelled, domain.OrderStatusRefunded:
	default:
		response.Error(c, apperror.Validation("unsupported target status"))
		return
	}

	order, err := h.orderSvc.Transition(c.Request.Context(), c.Param("number"), target, userID.String(), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToOrderResponse(order))
}

// Ship handles POST /api/v1/orders/:number/ship.
func (h *OrderHandler) Ship(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	order, err := h.orderSvc.Ship(c.Request.Context(), c.Param("number"), req.Carrier, req.TrackingNumber, userID.String())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToOrderResponse(order))
}

// Cancel handles POST /api/v1/orders/:number/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransitionRequest
	// Body is optional for cancellation; reason defaults inside the service.
	_ = c.ShouldBindJSON(&req)

	order, err := h.orderSvc.Cancel(c.Request.Context(), c.Param("number"), userID.String(), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToOrderResponse(order))
}
