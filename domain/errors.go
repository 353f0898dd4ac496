package domain

import (
	"errors"
	"fmt"
)

// Machine-readable error codes surfaced through the API.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeSessionClosed     = "SESSION_CLOSED"
	CodePersistence       = "PERSISTENCE_ERROR"
)

// Error is the standard failure type for catalog and sale operations.
// Every failure is synchronous and leaves state untouched; Code tells the
// caller which recovery applies.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key-value pair for the API response.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NewInvalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

func NewNotFound(entity, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %q not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func NewInsufficientStock(medicineID string, requested, available int64) *Error {
	return &Error{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for medicine %q", medicineID),
		Details: map[string]any{
			"medicine_id": medicineID,
			"requested":   requested,
			"available":   available,
		},
	}
}

func NewSessionClosed(sessionID string) *Error {
	return &Error{
		Code:    CodeSessionClosed,
		Message: fmt.Sprintf("cart session %q is no longer open", sessionID),
		Details: map[string]any{"session_id": sessionID},
	}
}

func NewPersistence(op string, err error) *Error {
	return &Error{Code: CodePersistence, Message: op, Err: err}
}

// CodeOf extracts the error code, or empty for non-domain errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
