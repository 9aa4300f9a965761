package cart

import (
	"context"
	"errors"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/cart/cache"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxLineQuantity = 99

type Service struct {
	repo        Repository
	cache       cache.CartCache
	sfg         singleflight.Group // Prevents cache stampede
	logger      zerolog.Logger
	maxQuantity int64
}

func NewService(repo Repository, c cache.CartCache, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		repo:        repo,
		cache:       c,
		logger:      logger.With().Str("component", "cart").Logger(),
		maxQuantity: DefaultMaxLineQuantity,
	}
}

func (s *Service) GetCart(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	key := identity.Key()

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, key)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("identity", key).Msg("cart cache read failed")
		}

		// read before the repository so an invalidation in between voids the fill
		gen, errGen := s.cache.Generation(ctx, key)
		if errGen != nil {
			s.logger.Warn().Err(errGen).Str("identity", key).Msg("cart cache generation read failed")
		}

		cart, errGet := s.repo.GetCart(ctx, key)
		if errors.Is(errGet, ErrCartNotFound) {
			return emptyCart(key), nil
		}
		if errGet != nil {
			return nil, errGet
		}

		if errGen == nil {
			go s.fillCache(key, cart, gen)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *Service) fillCache(key string, cart *domain.Cart, gen int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stored, err := s.cache.SetIfGeneration(ctx, key, cart, gen)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", key).Msg("cart cache write failed")
		return
	}
	if !stored {
		s.logger.Debug().Str("identity", key).Int64("generation", gen).Msg("cart changed while loading, cache fill dropped")
	}
}

// ListLines reads the repository directly. Checkout converts exactly what is
// stored, never a cached copy.
func (s *Service) ListLines(ctx context.Context, identity domain.Identity) ([]domain.CartLine, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetCart(ctx, identity.Key())
	if errors.Is(err, ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cart.Lines, nil
}

func (s *Service) UpsertLine(ctx context.Context, identity domain.Identity, variantID, qty int64) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	if variantID <= 0 {
		return ErrInvalidVariant
	}
	if qty <= 0 || qty > s.maxQuantity {
		return ErrInvalidQuantity
	}

	key := identity.Key()
	if err := s.repo.UpsertLine(ctx, key, variantID, qty); err != nil {
		s.logger.Error().Err(err).Str("identity", key).Int64("variant_id", variantID).Msg("cart upsert failed")
		return err
	}

	s.invalidateCache(key)
	return nil
}

func (s *Service) RemoveLine(ctx context.Context, identity domain.Identity, variantID int64) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	key := identity.Key()
	if err := s.repo.RemoveLine(ctx, key, variantID); err != nil {
		if !errors.Is(err, ErrLineNotFound) {
			s.logger.Error().Err(err).Str("identity", key).Int64("variant_id", variantID).Msg("cart remove failed")
		}
		return err
	}

	s.invalidateCache(key)
	return nil
}

// Clear drops the whole cart. Clearing an absent cart is not an error.
func (s *Service) Clear(ctx context.Context, identity domain.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	key := identity.Key()
	if err := s.repo.DeleteCart(ctx, key); err != nil && !errors.Is(err, ErrCartNotFound) {
		s.logger.Error().Err(err).Str("identity", key).Msg("cart clear failed")
		return err
	}

	s.invalidateCache(key)
	return nil
}

func (s *Service) invalidateCache(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("identity", key).Msg("cart cache invalidate failed")
	}
}

func emptyCart(key string) *domain.Cart {
	now := time.Now()
	return &domain.Cart{IdentityKey: key, CreatedAt: now, UpdatedAt: now}
}
