package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateImport is benign: the invoice key already has ledger entries for the tenant.
	ErrDuplicateImport = errors.New("nf-e already imported")
	ErrMissingTenant   = errors.New("tenant id missing from context")

	// per-item, never fatal to the invoice
	ErrProductNotFound    = errors.New("product not found and creation disabled")
	ErrFractionalQuantity = errors.New("fractional quantity cannot be stocked")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// PersistenceError wraps a catalog/ledger port failure. It is fatal to the invoice
// being reconciled and is never retried here.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) || errors.Is(err, ErrDuplicateImport) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// ItemError records why one line item was skipped.
type ItemError struct {
	Index int
	Code  string
	Name  string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s) %s: %v", e.Index+1, e.Code, e.Name, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// MarshalText lets results carry the message in JSON without exposing the error value.
func (e *ItemError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}
