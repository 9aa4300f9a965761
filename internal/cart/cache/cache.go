package cache

import (
	"context"
	"errors"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

// CartCache is a read-through copy of the cart repository. Every cart carries a
// generation that Invalidate bumps; a fill started before an invalidation
// must not land after it.
type CartCache interface {
	Get(ctx context.Context, identityKey string) (*domain.Cart, error)
	// Generation is read before the cart is loaded from the repository.
	Generation(ctx context.Context, identityKey string) (int64, error)
	// SetIfGeneration stores cart only while the generation still equals gen.
	SetIfGeneration(ctx context.Context, identityKey string, cart *domain.Cart, gen int64) (bool, error)
	// Invalidate drops the cached cart and bumps its generation.
	Invalidate(ctx context.Context, identityKey string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never stores anything; every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Nop) Generation(context.Context, string) (int64, error) { return 0, nil }
func (Nop) SetIfGeneration(context.Context, string, *domain.Cart, int64) (bool, error) {
	return false, nil
}
func (Nop) Invalidate(context.Context, string) error { return nil }
