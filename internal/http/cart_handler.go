package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nadhir24/bima-back-sub000/internal/cart"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/rs/zerolog"
)

type CartService interface {
	GetCart(ctx context.Context, identity domain.Identity) (*domain.Cart, error)
	UpsertLine(ctx context.Context, identity domain.Identity, variantID, qty int64) error
	RemoveLine(ctx context.Context, identity domain.Identity, variantID int64) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  zerolog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log zerolog.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  log,
	}
}

type AddItemRequestDTO struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int64 `json:"quantity"`
}

type CartLineDTO struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int64 `json:"quantity"`
}

type CartResponseDTO struct {
	Identity string        `json:"identity"`
	Lines    []CartLineDTO `json:"lines"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
		return
	}

	h.respondCart(ctx, w, identity, http.StatusOK)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.carts.UpsertLine(ctx, identity, req.VariantID, req.Quantity); err != nil {
		h.handleCartError(w, err)
		return
	}

	h.respondCart(ctx, w, identity, http.StatusCreated)
}

// DELETE /api/v1/cart/items/{variant_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
		return
	}

	variantID, err := strconv.ParseInt(chi.URLParam(r, "variant_id"), 10, 64)
	if err != nil || variantID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id must be a positive integer")
		return
	}

	if err := h.carts.RemoveLine(ctx, identity, variantID); err != nil {
		h.handleCartError(w, err)
		return
	}

	h.respondCart(ctx, w, identity, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, identity domain.Identity, status int) {
	c, err := h.carts.GetCart(ctx, identity)
	if err != nil {
		h.handleCartError(w, err)
		return
	}

	lines := make([]CartLineDTO, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, CartLineDTO{VariantID: l.VariantID, Quantity: l.Quantity})
	}
	respondJSON(w, status, CartResponseDTO{Identity: identity.Key(), Lines: lines})
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrInvalidVariant):
		respondError(w, http.StatusBadRequest, "invalid_variant_id", err.Error())
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, cart.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidIdentity):
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
	default:
		h.logger.Error().Err(err).Msg("cart request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
