package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/inventory"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/rs/zerolog"
)

// compensate undoes a placed order whose payment session never materialised.
// A failure here leaves the order to the orphan sweeper.
func (s *CheckoutService) compensate(ctx context.Context, order *domain.Order, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensateTimeout)
	defer cancel()

	if _, err := s.AbandonOrder(ctx, order.ID, "payment_session_failed"); err != nil {
		s.metrics.Anomaly("compensation_failed")
		log.Error().Err(err).Bool("anomaly", true).Msg("compensation failed, order left for sweeper")
	}
}

// AbandonOrder deletes a PENDING order that has no payment record and gives
// its stock back, all in one transaction. It reports false when the order is
// gone, already has a payment record, or is no longer PENDING.
func (s *CheckoutService) AbandonOrder(ctx context.Context, orderID, reason string) (bool, error) {
	ctx, span := tracer.Start(ctx, "checkout.abandon_order")
	defer span.End()

	abandoned := false
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending || order.Payment != nil {
			return nil
		}

		deleted, err := tx.DeletePendingOrder(ctx, orderID)
		if err != nil || !deleted {
			return err
		}
		if err := s.releaseLines(ctx, tx.Ledger(), order); err != nil {
			return err
		}

		event, err := repository.NewOutboxEvent(order.ID, domain.EventOrderCancelled, domain.NewOrderEvent(order, reason))
		if err != nil {
			return err
		}
		if err := tx.AddOutboxEvent(ctx, event); err != nil {
			return err
		}
		abandoned = true
		return nil
	})
	if errors.Is(err, repository.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to abandon order %s: %w", orderID, err)
	}
	return abandoned, nil
}

func (s *CheckoutService) releaseLines(ctx context.Context, ledger inventory.Ledger, order *domain.Order) error {
	return inventory.ReleaseAll(ctx, ledger, inventory.ReservationsFor(order), func(r inventory.Reservation) {
		s.metrics.Anomaly("release_missing_variant")
		s.logger.Error().Bool("anomaly", true).Str("order_id", order.ID).Int64("variant_id", r.VariantID).
			Int64("quantity", r.Quantity).Msg("cannot restore stock of a missing variant")
	})
}
