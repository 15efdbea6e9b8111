package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrStorageFailure    = errors.New("storage failure")

	errStockMoved = errors.New("stock changed during placement")
)

// Shortage describes one product that cannot cover the requested quantity.
type Shortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		label := s.ProductID
		if s.Name != "" {
			label = s.Name + " (" + s.ProductID + ")"
		}
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", label, s.Requested, s.Available))
	}
	return "insufficient stock for " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type ProductNotFoundError struct {
	ProductIDs []string
}

func (e *ProductNotFoundError) Error() string {
	return "product not found: " + strings.Join(e.ProductIDs, ", ")
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// StorageError wraps a store failure. Retryable marks failures where a fresh
// attempt of the whole unit may succeed (serialization conflicts, deadlocks).
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a non-retryable StorageError. A nil err stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func TransientStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Retryable: true, Err: err}
}

func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
