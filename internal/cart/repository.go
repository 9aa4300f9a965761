package cart

import (
	"context"
	"errors"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrLineNotFound    = errors.New("line not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and the per-line maximum")
	ErrInvalidVariant  = errors.New("variant id must be positive")
)

// Repository stores one cart document per identity key.
type Repository interface {
	GetCart(ctx context.Context, identityKey string) (*domain.Cart, error)
	// UpsertLine adds qty to an existing line or creates the line.
	UpsertLine(ctx context.Context, identityKey string, variantID, qty int64) error
	RemoveLine(ctx context.Context, identityKey string, variantID int64) error
	DeleteCart(ctx context.Context, identityKey string) error
}
