package inventory

import (
	"context"
	"errors"
)

// Common errors returned by ledgers
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Reservation is the token handed out by Reserve. It carries the variant
// snapshot read under the same lock that guarded the decrement.
type Reservation struct {
	VariantID int64
	Quantity  int64
	Name      string
	UnitPrice int64
	Currency  string
}

// Ledger is the only writer of variant quantity.
// Stock is decremented immediately by Reserve; Commit is kept for callers
// that follow a reserve/commit protocol and does nothing.
type Ledger interface {
	// Reserve takes qty units of the variant or fails with ErrInsufficientStock.
	// A missing or inactive variant is reported as ErrInsufficientStock too.
	Reserve(ctx context.Context, variantID int64, qty int64) (Reservation, error)

	// Release gives the reserved units back to the variant.
	Release(ctx context.Context, r Reservation) error

	Commit(ctx context.Context, r Reservation) error
}
