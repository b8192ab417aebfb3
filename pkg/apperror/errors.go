package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet & Ledger (WAL) ----

func ErrInsufficientFunds() *AppError {
	return New("WAL_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

// ErrDuplicateReference marks a ledger movement whose (user, type,
// reference) already exists. The ledger swallows it and reports "already
// applied"; it only surfaces when a caller asks for strict application.
func ErrDuplicateReference(reference string) *AppError {
	return New("WAL_002", fmt.Sprintf("Ledger entry already exists for reference %s", reference), http.StatusConflict)
}

func ErrWalletNotFound() *AppError {
	return New("WAL_003", "Wallet not found", http.StatusNotFound)
}

// ---- Order state machine (ORD) ----

func ErrInvalidTransition(from, to string) *AppError {
	return New("ORD_001", fmt.Sprintf("Illegal order transition %s -> %s", from, to), http.StatusConflict)
}

func ErrOrderNotFound(orderNumber string) *AppError {
	return New("ORD_002", fmt.Sprintf("Order %s not found", orderNumber), http.StatusNotFound)
}

// ErrCompensationFailure means a saga rollback itself failed: money left a
// wallet with no corresponding order. Never swallow this one.
func ErrCompensationFailure(reference string, err error) *AppError {
	return Wrap("ORD_003", fmt.Sprintf("Compensation failed for %s, manual reconciliation required", reference), http.StatusInternalServerError, err)
}

func ErrProductUnavailable() *AppError {
	return New("ORD_004", "Product is not available for purchase", http.StatusConflict)
}

// ---- Carrier (CAR) ----

func ErrCarrierUnavailable(err error) *AppError {
	return Wrap("CAR_001", "Shipping carrier unreachable, retry later", http.StatusServiceUnavailable, err)
}

func ErrCarrierAuthFailure() *AppError {
	return New("CAR_002", "Shipping carrier rejected our credentials", http.StatusBadGateway)
}

func ErrCarrierNotFound(trackingNumber string) *AppError {
	return New("CAR_003", fmt.Sprintf("Carrier has no shipment %s", trackingNumber), http.StatusNotFound)
}

// ---- Security & validation ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid payload signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Insufficient privileges", http.StatusForbidden)
}

// Validation returns a malformed-request error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- System (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
