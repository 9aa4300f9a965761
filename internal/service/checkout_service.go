package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/logger"
	"github.com/nadhir24/bima-back-sub000/internal/metrics"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/nadhir24/bima-back-sub000/internal/service")

// CartStore is the checkout's view of the cart.
type CartStore interface {
	ListLines(ctx context.Context, identity domain.Identity) ([]domain.CartLine, error)
	Clear(ctx context.Context, identity domain.Identity) error
}

type PaymentGateway interface {
	OpenSession(ctx context.Context, req payment.SessionRequest) (*payment.SessionHandle, error)
}

type CheckoutRequest struct {
	Identity domain.Identity
	// IdempotencyKey is optional; without it the cart snapshot is the key.
	IdempotencyKey string
	Customer       payment.Customer
}

type CheckoutResult struct {
	Order        *domain.Order
	RedirectURL  string
	SessionToken string
}

type Config struct {
	Currency          string
	GatewayTimeout    time.Duration
	CompensateTimeout time.Duration
	ClearCartTimeout  time.Duration
}

type CheckoutService struct {
	store   repository.Store
	carts   CartStore
	gateway PaymentGateway
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewCheckoutService(
	store repository.Store,
	carts CartStore,
	gateway PaymentGateway,
	cfg Config,
	log zerolog.Logger,
	m *metrics.Metrics,
) *CheckoutService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.CompensateTimeout <= 0 {
		cfg.CompensateTimeout = 5 * time.Second
	}
	if cfg.ClearCartTimeout <= 0 {
		cfg.ClearCartTimeout = 2 * time.Second
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &CheckoutService{
		store:   store,
		carts:   carts,
		gateway: gateway,
		cfg:     cfg,
		logger:  log.With().Str("component", "checkout").Logger(),
		metrics: m,
	}
}

// Checkout turns the identity's cart into a PENDING order with an open payment
// session. Stock is taken in the same transaction that persists the order and
// is given back if the session cannot be opened.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "checkout")
	defer span.End()

	if err := req.Identity.Validate(); err != nil {
		return nil, err
	}
	log := logger.Ctx(ctx, s.logger).With().Str("identity", req.Identity.Key()).Logger()

	cartLines, err := s.carts.ListLines(ctx, req.Identity)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(cartLines) == 0 {
		s.metrics.CheckoutOutcome("empty_cart")
		return nil, ErrEmptyCart
	}

	lines, err := normalizeLines(cartLines)
	if err != nil {
		s.metrics.CheckoutOutcome("invalid_cart")
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = snapshotKey(lines)
	}
	key = req.Identity.Key() + ":" + key

	order, err := s.placeOrder(ctx, req.Identity, key, lines)
	var dup *duplicateCheckoutError
	switch {
	case errors.As(err, &dup):
		return s.resumeCheckout(ctx, req.Identity, dup.orderID, log)
	case errors.Is(err, ErrInsufficientStock):
		s.metrics.CheckoutOutcome("insufficient_stock")
		log.Info().Err(err).Msg("checkout rejected")
		return nil, err
	case err != nil:
		s.metrics.CheckoutOutcome("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.total", order.Total))
	log = log.With().Str("order_id", order.ID).Logger()

	handle, err := s.openSession(ctx, order, req.Customer)
	if err != nil {
		log.Warn().Err(err).Msg("payment session failed, releasing order")
		s.compensate(ctx, order, log)
		s.metrics.CheckoutOutcome("gateway_unavailable")
		span.SetStatus(codes.Error, "payment session failed")
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	if err := s.attachPayment(ctx, order, handle); err != nil {
		// without a local record the session is unusable; take the order back
		log.Error().Err(err).Msg("failed to persist payment record, releasing order")
		s.compensate(ctx, order, log)
		s.metrics.CheckoutOutcome("error")
		span.RecordError(err)
		return nil, err
	}

	s.clearCart(ctx, req.Identity, log)

	s.metrics.CheckoutOutcome("success")
	log.Info().Int64("total", order.Total).Str("currency", order.Currency).Msg("checkout completed")
	return &CheckoutResult{
		Order:        order,
		RedirectURL:  handle.RedirectURL,
		SessionToken: handle.Token,
	}, nil
}

// resumeCheckout answers a repeated checkout with the session of the PENDING
// order that already holds the same key.
func (s *CheckoutService) resumeCheckout(ctx context.Context, identity domain.Identity, orderID string, log zerolog.Logger) (*CheckoutResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrCheckoutInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load existing order: %w", err)
	}
	if order.Payment == nil || order.Payment.SessionToken == "" {
		s.metrics.CheckoutOutcome("in_progress")
		return nil, ErrCheckoutInProgress
	}

	log.Info().Str("order_id", order.ID).Msg("duplicate checkout, returning existing session")
	s.clearCart(ctx, identity, log)
	s.metrics.CheckoutOutcome("duplicate")
	return &CheckoutResult{
		Order:        order,
		RedirectURL:  order.Payment.RedirectURL,
		SessionToken: order.Payment.SessionToken,
	}, nil
}

func (s *CheckoutService) clearCart(ctx context.Context, identity domain.Identity, log zerolog.Logger) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ClearCartTimeout)
	defer cancel()
	if err := s.carts.Clear(clearCtx, identity); err != nil {
		log.Warn().Err(err).Msg("order placed but cart could not be cleared")
	}
}

// normalizeLines rejects non-positive quantities, merges repeated variants and
// sorts by variant id so every checkout locks variants in the same order.
func normalizeLines(lines []domain.CartLine) ([]domain.CartLine, error) {
	merged := make(map[int64]int64, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 || l.VariantID <= 0 {
			return nil, fmt.Errorf("%w: variant %d quantity %d", ErrInvalidLine, l.VariantID, l.Quantity)
		}
		merged[l.VariantID] += l.Quantity
	}

	out := make([]domain.CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, domain.CartLine{VariantID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

func snapshotKey(lines []domain.CartLine) string {
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(strconv.FormatInt(l.VariantID, 10)))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatInt(l.Quantity, 10)))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
