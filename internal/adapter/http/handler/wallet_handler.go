package handler

import (
	"strconv"

	"ev-marketplace/internal/adapter/http/dto"
	"ev-marketplace/internal/adapter/http/middleware"
	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler serves the buyer-facing wallet endpoints.
type WalletHandler struct {
	ledger ports.LedgerService
}

func NewWalletHandler(ledger ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// GetBalance handles GET /api/v1/wallets/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletBalanceResponse{Balance: balance, Currency: "VND"})
}

// ListTransactions handles GET /api/v1/wallets/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.ledger.ListEntries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, dto.ToLedgerEntryResponse(&entries[i]))
	}
	response.OK(c, out)
}

// Withdraw handles POST /api/v1/wallets/withdraw. The caller-supplied
// reference makes retried requests idempotent.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entry, applied, err := h.ledger.Debit(c.Request.Context(), ports.MoveRequest{
		UserID:      userID,
		Amount:      req.Amount,
		EntryType:   domain.EntryTypeWithdraw,
		Reference:   req.Reference,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.MoveResponse{Entry: dto.ToLedgerEntryResponse(entry), Applied: applied})
}

// callerID extracts the authenticated user id set by the JWT middleware.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
