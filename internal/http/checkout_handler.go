package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/service"
	"github.com/rs/zerolog"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Checkouter interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

type CheckoutHandler struct {
	checkout Checkouter
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewCheckoutHandler(checkout Checkouter, timeout time.Duration, log zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		logger:   log,
	}
}

type CustomerDTO struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CheckoutRequestDTO is optional; an empty body checks out the cart as is.
type CheckoutRequestDTO struct {
	IdempotencyKey string      `json:"idempotency_key"`
	Customer       CustomerDTO `json:"customer"`
}

type CheckoutResponseDTO struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	Total        int64  `json:"total"`
	Currency     string `json:"currency"`
	RedirectURL  string `json:"redirect_url"`
	SessionToken string `json:"session_token"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	key := r.Header.Get(HeaderIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		Identity:       identity,
		IdempotencyKey: key,
		Customer: payment.Customer{
			FirstName: req.Customer.FirstName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
	})
	if err != nil {
		h.handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrderID:      result.Order.ID,
		Status:       result.Order.Status.String(),
		Total:        result.Order.Total,
		Currency:     result.Order.Currency,
		RedirectURL:  result.RedirectURL,
		SessionToken: result.SessionToken,
	})
}

func (h *CheckoutHandler) handleCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", "cart is empty")
	case errors.Is(err, service.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, service.ErrGatewayUnavailable):
		respondError(w, http.StatusServiceUnavailable, "payment_unavailable", "payment provider unavailable, try again")
	case errors.Is(err, service.ErrInvalidLine), errors.Is(err, service.ErrCurrencyMismatch):
		respondError(w, http.StatusUnprocessableEntity, "invalid_cart", err.Error())
	case errors.Is(err, service.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", "checkout for this cart is already in progress")
	case errors.Is(err, domain.ErrInvalidIdentity):
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
	default:
		h.logger.Error().Err(err).Msg("checkout failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
