package rentledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("rentledger: not found")
	ErrAlreadyExists = errors.New("rentledger: already exists")
	ErrInvalidInput  = errors.New("rentledger: invalid input")

	// Identity errors
	ErrNotAuthenticated = errors.New("rentledger: no tenant identity")

	// Read errors
	ErrFetchFailed      = errors.New("rentledger: fetch failed")
	ErrProfileNotFound  = errors.New("rentledger: profile not found")
	ErrPaymentNotFound  = errors.New("rentledger: payment not found")
	ErrInvalidPeriodKey = errors.New("rentledger: invalid period key")
	ErrInvalidStatus    = errors.New("rentledger: invalid payment status")

	// Write errors
	ErrWriteRejected        = errors.New("rentledger: write rejected")
	ErrDuplicateTransaction = errors.New("rentledger: duplicate transaction reference")

	// Workflow errors
	ErrValidationFailed = errors.New("rentledger: validation failed")
	ErrWorkflowBusy     = errors.New("rentledger: payment already processing")

	// Change feed errors
	ErrNotificationLost = errors.New("rentledger: change feed connection lost")
	ErrFeedClosed       = errors.New("rentledger: change feed closed")

	// Store errors
	ErrStoreNotReady = errors.New("rentledger: store not ready")
	ErrStoreClosed   = errors.New("rentledger: store is closed")
)

// ValidationError represents a validation failure with details.
// It matches ErrValidationFailed under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("rentledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is reports ErrValidationFailed as a match.
func (e ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// WriteRejectedError carries the store's reason for declining an insert.
// It matches ErrWriteRejected and unwraps to the underlying cause.
type WriteRejectedError struct {
	Reason string
	Err    error
}

// RejectWrite wraps err as a WriteRejectedError, reusing err's text as the reason.
func RejectWrite(err error) *WriteRejectedError {
	return &WriteRejectedError{Reason: err.Error(), Err: err}
}

func (e *WriteRejectedError) Error() string {
	return "rentledger: write rejected: " + e.Reason
}

// Is reports ErrWriteRejected as a match.
func (e *WriteRejectedError) Is(target error) bool {
	return target == ErrWriteRejected
}

func (e *WriteRejectedError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "rentledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("rentledger: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried by the tenant. The ledger itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrNotificationLost)
}
