package handler

import (
	"encoding/base64"
	"encoding/json"

	"ev-marketplace/internal/adapter/http/dto"
	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookHandler receives payment gateway callbacks that top up wallets.
// The gateway signs the base64 payload with a shared secret; the gateway's
// transaction id is the ledger reference, so redelivered callbacks credit
// at most once.
type WebhookHandler struct {
	ledger         ports.LedgerService
	sigSvc         ports.SignatureService
	callbackSecret string
	log            zerolog.Logger
}

func NewWebhookHandler(ledger ports.LedgerService, sigSvc ports.SignatureService, callbackSecret string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledger:         ledger,
		sigSvc:         sigSvc,
		callbackSecret: callbackSecret,
		log:            log.With().Str("component", "payment_webhook").Logger(),
	}
}

// PaymentCallback handles POST /api/v1/webhooks/payment.
func (h *WebhookHandler) PaymentCallback(c *gin.Context) {
	var req dto.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if !h.sigSvc.Verify(h.callbackSecret, req.Payload, req.Signature) {
		h.log.Warn().Str("client_ip", c.ClientIP()).Msg("rejected callback with bad signature")
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		response.Error(c, apperror.Validation("payload is not valid base64"))
		return
	}

	var payload dto.PaymentCallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		response.Error(c, apperror.Validation("payload is not valid JSON"))
		return
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id in payload"))
		return
	}
	if payload.TransactionID == "" {
		response.Error(c, apperror.Validation("missing transaction_id in payload"))
		return
	}

	entry, applied, err := h.ledger.Credit(c.Request.Context(), ports.MoveRequest{
		UserID:      userID,
		Amount:      payload.Amount,
		EntryType:   domain.EntryTypeDeposit,
		Reference:   payload.TransactionID,
		Description: "Payment gateway deposit",
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if !applied {
		h.log.Info().Str("transaction_id", payload.TransactionID).Msg("callback redelivery, deposit already applied")
	}
	response.OK(c, dto.MoveResponse{Entry: dto.ToLedgerEntryResponse(entry), Applied: applied})
}
