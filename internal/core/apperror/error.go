// Package apperror provides structured error handling for the stock composer.
// Every failure surfaced to the operator is an AppError: resolution errors
// (row-scoped lookups), validation errors (local, pre-submit) and submission
// errors (the inventory service rejected the whole document).
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors
	CodeInternal           = "INTERNAL_ERROR"
	CodeTimeout            = "TIMEOUT_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Resolution errors (unit / batch lookups)
	CodeResolution = "RESOLUTION_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeLastLine          = "LAST_LINE"
	CodeItemUnavailable   = "ITEM_UNAVAILABLE"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict             = "CONFLICT"
	CodeDuplicate            = "DUPLICATE_ENTRY"
	CodeSubmissionInProgress = "SUBMISSION_IN_PROGRESS"
	CodeComposerClosed       = "COMPOSER_CLOSED"

	// Submission rejected by the inventory service
	CodeSubmission = "SUBMISSION_REJECTED"
)

// AppError is the standard error type of the module.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (lineNo, field, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the status returned by the inventory service, or the
	// status that best describes a locally produced error
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

// LineNo returns the 1-based row number attached to the error, or 0.
func (e *AppError) LineNo() int {
	switch v := e.Details["lineNo"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Field returns the offending field name attached to the error, or "".
func (e *AppError) Field() string {
	s, _ := e.Details["field"].(string)
	return s
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

// NewLineValidation creates a validation error bound to a 1-based row and field.
func NewLineValidation(lineNo int, field, message string) *AppError {
	return NewValidation(message).
		WithDetail("field", field).
		WithDetail("lineNo", lineNo)
}

// NewResolution creates a recoverable lookup error. The affected row stays
// editable; only its submission is blocked.
func NewResolution(entity string, id any, err error) *AppError {
	return &AppError{
		Code:       CodeResolution,
		Message:    fmt.Sprintf("failed to resolve %s", entity),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"entity": entity, "id": id},
		Err:        err,
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

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(batchID int64, requested, available int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"batch_id":  batchID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewInternal creates an internal error
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewServiceUnavailable wraps a transport failure talking to the inventory service.
func NewServiceUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeServiceUnavailable,
		Message:    "Inventory service is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewTimeout reports a request to the inventory service that ran out of time.
func NewTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    "Inventory service did not respond in time",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
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

// NewConflict creates a conflict error (409)
func NewConflict(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewSubmission wraps an error returned while posting a whole document.
// The composer keeps the document intact so the operator can retry.
func NewSubmission(kind string, err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr.WithDetail("document", kind)
	}
	return &AppError{
		Code:       CodeSubmission,
		Message:    "Document was rejected",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"document": kind},
		Err:        err,
	}
}

// problemBody mirrors the error body of the inventory service.
type problemBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// FromResponse builds an AppError from a non-2xx response of the inventory
// service. Bodies that are not in the service's error format still produce
// an error carrying the status code.
func FromResponse(status int, body []byte) *AppError {
	var p problemBody
	if err := json.Unmarshal(body, &p); err != nil || p.Code == "" {
		msg := http.StatusText(status)
		if msg == "" {
			msg = "unexpected response"
		}
		return &AppError{
			Code:       codeForStatus(status),
			Message:    msg,
			HTTPStatus: status,
		}
	}
	if p.Message == "" {
		p.Message = http.StatusText(status)
	}
	return &AppError{
		Code:       p.Code,
		Message:    p.Message,
		Details:    p.Details,
		HTTPStatus: status,
	}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return CodeInvalidInput
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusUnprocessableEntity:
		return CodeBusinessRule
	case status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeServiceUnavailable
	}
	return CodeInternal
}

// --- Helper functions ---

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

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// IsResolution checks if error is CodeResolution
func IsResolution(err error) bool {
	return HasCode(err, CodeResolution)
}

// IsRetryable reports whether the operator can reasonably resubmit after
// adjusting the document: business rule rejections, conflicts and transient
// service failures. Authorization failures are not retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.HTTPStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false
	case http.StatusConflict, http.StatusUnprocessableEntity, http.StatusBadRequest,
		http.StatusTooManyRequests, http.StatusNotFound:
		return true
	}
	return appErr.HTTPStatus >= 500
}
