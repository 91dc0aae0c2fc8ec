// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal    = "INTERNAL_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
	CodeTimeout     = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeConfiguration          = "CONFIGURATION_ERROR"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeSaleFinalized          = "SALE_ALREADY_FINALIZED"
	CodeReturnProcessed        = "RETURN_ALREADY_PROCESSED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Fiscal emission (422 / 502)
	CodeFiscalRejected  = "FISCAL_REJECTED"
	CodeFiscalTransport = "FISCAL_TRANSPORT_ERROR"

	// Stock reconciliation (logged, never fatal)
	CodeStockReconciliation = "STOCK_RECONCILIATION_ERROR"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict           = "CONFLICT"
	CodeDuplicate          = "DUPLICATE_ENTRY"
	CodeIdempotency        = "IDEMPOTENCY_CONFLICT"
	CodeReturnItemConflict = "RETURN_ITEM_CONFLICT"
	CodeTradeCodeExhausted = "CODE_GENERATION_EXHAUSTED"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConfiguration creates a configuration error (422).
// Used when a legally significant setting (e.g. the operator's receipt
// series) is absent and no implicit default may be substituted.
func NewConfiguration(message string) *AppError {
	return &AppError{
		Code:       CodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewPersistence creates a persistence error (500).
// Aborts the workflow; state stays at whatever the last successful write produced.
func NewPersistence(op string, err error) *AppError {
	return &AppError{
		Code:       CodePersistence,
		Message:    "Persistence operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

// NewFiscalRejected creates an error for a document rejected by the fiscal authority.
func NewFiscalRejected(reason string) *AppError {
	return &AppError{
		Code:       CodeFiscalRejected,
		Message:    "Fiscal document rejected by authority",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"reason": reason},
	}
}

// NewFiscalTransport creates an error for a failed fiscal submission where the
// authority outcome is unknown (network failure, timeout, 5xx).
func NewFiscalTransport(reason string, err error) *AppError {
	return &AppError{
		Code:       CodeFiscalTransport,
		Message:    "Fiscal authority unreachable",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"reason": reason},
		Err:        err,
	}
}

// NewStockReconciliation creates a stock reconciliation error.
// Callers log it as a warning; it never aborts sale finalization.
func NewStockReconciliation(productID string, err error) *AppError {
	return &AppError{
		Code:       CodeStockReconciliation,
		Message:    "Stock reconciliation failed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"product_id": productID},
		Err:        err,
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(productID string, requested, available float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewReturnItemConflict is returned when a sale item is already linked to a
// pending or processed return and is selected for another one.
func NewReturnItemConflict(saleItemID string) *AppError {
	return &AppError{
		Code:       CodeReturnItemConflict,
		Message:    "Item is already part of another return",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"sale_item_id": saleItemID},
	}
}

// NewTradeCodeExhausted is returned when sequential trade code generation
// keeps colliding after the bounded number of attempts.
func NewTradeCodeExhausted(attempts int) *AppError {
	return &AppError{
		Code:       CodeTradeCodeExhausted,
		Message:    "Could not generate a unique trade code",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"attempts": attempts},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return IsCode(err, CodeConcurrentModification)
}
