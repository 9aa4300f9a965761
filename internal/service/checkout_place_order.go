package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
)

type duplicateCheckoutError struct {
	orderID string
}

func (e *duplicateCheckoutError) Error() string {
	return fmt.Sprintf("checkout already placed as order %s", e.orderID)
}

// placeOrder reserves every line and persists the order, its lines and the
// order.placed event in one transaction. Any failure rolls all of it back.
func (s *CheckoutService) placeOrder(ctx context.Context, identity domain.Identity, key string, lines []domain.CartLine) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "checkout.place_order")
	defer span.End()

	order := &domain.Order{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		Identity:       identity,
		Currency:       s.cfg.Currency,
		Status:         domain.OrderStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.ClaimCheckout(ctx, key)
		if err != nil {
			return err
		}
		if existing != "" {
			return &duplicateCheckoutError{orderID: existing}
		}

		ledger := tx.Ledger()
		orderLines := make([]domain.OrderLine, 0, len(lines))
		for _, line := range lines {
			res, err := ledger.Reserve(ctx, line.VariantID, line.Quantity)
			if err != nil {
				return err
			}
			if !strings.EqualFold(res.Currency, order.Currency) {
				s.metrics.Anomaly("currency_mismatch")
				s.logger.Error().Bool("anomaly", true).Int64("variant_id", res.VariantID).
					Str("variant_currency", res.Currency).Str("store_currency", order.Currency).
					Msg("variant priced in a foreign currency")
				return fmt.Errorf("%w: variant %d", ErrCurrencyMismatch, res.VariantID)
			}
			if err := ledger.Commit(ctx, res); err != nil {
				return err
			}
			orderLines = append(orderLines, domain.OrderLine{
				VariantID: res.VariantID,
				Name:      res.Name,
				UnitPrice: res.UnitPrice,
				Quantity:  res.Quantity,
			})
		}
		order.Lines = orderLines
		order.Total = domain.SumLines(orderLines)
		order.UpdatedAt = order.CreatedAt

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		event, err := repository.NewOutboxEvent(order.ID, domain.EventOrderPlaced, domain.NewOrderEvent(order, ""))
		if err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, event)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return order, nil
}
