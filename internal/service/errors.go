package service

import (
	"errors"

	"github.com/nadhir24/bima-back-sub000/internal/inventory"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrInvalidLine        = errors.New("cart line quantity must be positive")
	ErrInsufficientStock  = inventory.ErrInsufficientStock
	ErrGatewayUnavailable = payment.ErrGatewayUnavailable
	ErrCheckoutInProgress = errors.New("checkout for this cart is already in progress")
	ErrCurrencyMismatch   = errors.New("variant currency does not match store currency")
	ErrOrderNotFound      = repository.ErrOrderNotFound
)
