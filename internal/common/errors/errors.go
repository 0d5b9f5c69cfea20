// Package errors provides the standardized error kinds returned by the hiring
// core and their mapping onto HTTP responses and BPMN workflow errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeSelfBidForbidden    ErrorCode = "SELF_BID_FORBIDDEN"
	ErrCodeTaskClosed          ErrorCode = "TASK_CLOSED"
	ErrCodeTaskAlreadyAssigned ErrorCode = "TASK_ALREADY_ASSIGNED"
	ErrCodeDuplicateProposal   ErrorCode = "DUPLICATE_PROPOSAL"
	ErrCodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the infrastructure error a kind was built from, if any.
func (e *StandardError) Unwrap() error { return e.cause }

// Is matches any *StandardError carrying the same code, so callers can write
// errors.Is(err, errors.ErrTaskAlreadyAssigned).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons. Never return these directly; use the
// constructors so each error carries its own details and timestamp.
var (
	ErrNotFound            = &StandardError{Code: ErrCodeNotFound}
	ErrForbidden           = &StandardError{Code: ErrCodeForbidden}
	ErrSelfBidForbidden    = &StandardError{Code: ErrCodeSelfBidForbidden}
	ErrTaskClosed          = &StandardError{Code: ErrCodeTaskClosed}
	ErrTaskAlreadyAssigned = &StandardError{Code: ErrCodeTaskAlreadyAssigned}
	ErrDuplicateProposal   = &StandardError{Code: ErrCodeDuplicateProposal}
	ErrTransactionFailed   = &StandardError{Code: ErrCodeTransactionFailed}
	ErrValidationFailed    = &StandardError{Code: ErrCodeValidationFailed}
	ErrUnauthenticated     = &StandardError{Code: ErrCodeUnauthenticated}
)

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports a referenced task or proposal that does not exist.
func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), fmt.Sprintf("id: %s", id), false)
}

// NewForbiddenError reports a caller that may not perform the action.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Not authorized for this action", details, false)
}

func NewSelfBidForbiddenError(taskID string) *StandardError {
	return newError(ErrCodeSelfBidForbidden, "You cannot bid on your own gig", fmt.Sprintf("taskId: %s", taskID), false)
}

func NewTaskClosedError(taskID string) *StandardError {
	return newError(ErrCodeTaskClosed, "This gig is no longer accepting bids", fmt.Sprintf("taskId: %s", taskID), false)
}

func NewTaskAlreadyAssignedError(taskID string) *StandardError {
	return newError(ErrCodeTaskAlreadyAssigned, "This gig is already assigned", fmt.Sprintf("taskId: %s", taskID), false)
}

func NewDuplicateProposalError(taskID, proposerID string) *StandardError {
	return newError(ErrCodeDuplicateProposal, "You have already submitted a bid for this gig",
		fmt.Sprintf("taskId: %s, proposerId: %s", taskID, proposerID), false)
}

// NewTransactionFailedError wraps a commit-layer failure. Callers may retry.
func NewTransactionFailedError(err error) *StandardError {
	e := newError(ErrCodeTransactionFailed, "Hiring transaction could not complete, please retry", "", true)
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

func NewValidationFailedError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Request validation failed", details, false)
}

func NewUnauthenticatedError(details string) *StandardError {
	return newError(ErrCodeUnauthenticated, "Authentication required", details, false)
}

// NewInternalError wraps an unexpected infrastructure failure outside the
// hiring transaction.
func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", "", false)
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// ==========================
// 3. Inspection helpers
// ==========================

// As extracts the *StandardError from err if there is one.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize always returns a *StandardError, mapping unknown errors to INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// ==========================
// 4. Transport mappings
// ==========================

var httpStatusMapping = map[ErrorCode]int{
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeSelfBidForbidden:    http.StatusUnprocessableEntity,
	ErrCodeTaskClosed:          http.StatusConflict,
	ErrCodeTaskAlreadyAssigned: http.StatusConflict,
	ErrCodeDuplicateProposal:   http.StatusConflict,
	ErrCodeTransactionFailed:   http.StatusServiceUnavailable,
	ErrCodeValidationFailed:    http.StatusBadRequest,
	ErrCodeUnauthenticated:     http.StatusUnauthorized,
	ErrCodeInternal:            http.StatusInternalServerError,
}

// HTTPStatus returns the response status for a code.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// BPMNErrorMapping maps internal codes to the error codes caught by boundary
// events in the hiring process models.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeNotFound:            "GIG_OR_BID_NOT_FOUND",
	ErrCodeForbidden:           "HIRE_FORBIDDEN",
	ErrCodeSelfBidForbidden:    "SELF_BID_FORBIDDEN",
	ErrCodeTaskClosed:          "GIG_CLOSED",
	ErrCodeTaskAlreadyAssigned: "GIG_ALREADY_ASSIGNED",
	ErrCodeDuplicateProposal:   "DUPLICATE_BID",
	ErrCodeTransactionFailed:   "HIRE_TRANSACTION_FAILED",
	ErrCodeValidationFailed:    "INPUT_VALIDATION_FAILED",
	ErrCodeUnauthenticated:     "UNAUTHENTICATED",
	ErrCodeInternal:            "INTERNAL_ERROR",
}

// GetRetryCount returns how many job retries a code deserves before the
// error is thrown to the workflow.
func GetRetryCount(code ErrorCode) int {
	if code == ErrCodeTransactionFailed {
		return 3
	}
	return 0
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	Retries   int    `json:"retries"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	return map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
}

// ConvertToBPMNError converts a StandardError to its workflow representation.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	code, ok := BPMNErrorMapping[stdErr.Code]
	if !ok {
		code = string(stdErr.Code)
	}
	return &BPMNError{
		Code:      code,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   GetRetryCount(stdErr.Code),
	}
}
