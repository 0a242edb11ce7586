package services

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-immo/validation"
)

var (
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrAlreadyPaid         = errors.New("installment already paid")
	ErrPaymentInFlight     = errors.New("a payment for this installment is already being recorded")
	// ErrConcurrentUpdate means the installment changed between read and
	// write without being paid; the caller should reload and resubmit.
	ErrConcurrentUpdate = errors.New("installment was modified concurrently")
)

// ValidationError carries field violations found at the input boundary.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Violations))
}

// PersistenceError wraps a failed write. The installment is left unchanged
// and nothing is retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
