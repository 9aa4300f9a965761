package service

import (
	"context"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

// GetOrder returns the order only to the identity that placed it.
func (s *CheckoutService) GetOrder(ctx context.Context, identity domain.Identity, orderID string) (*domain.Order, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Identity != identity {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
