package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInsufficientCredits     = errors.New("insufficient credits")
	ErrProfileNotFound         = errors.New("profile not found")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrStorage                 = errors.New("storage failure")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidEventID          = errors.New("invalid event id")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidCredits          = errors.New("invalid credits")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrInvalidListLimit        = errors.New("invalid list limit")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// StorageFault marks err as an infrastructure failure so callers can match ErrStorage
// while the driver error stays reachable through errors.As.
func StorageFault(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// IsStorageFault reports whether err originated in the persistence layer.
func IsStorageFault(err error) bool {
	return errors.Is(err, ErrStorage)
}
