package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
)

// openSession runs outside any transaction or lock, bounded by the gateway timeout.
func (s *CheckoutService) openSession(ctx context.Context, order *domain.Order, customer payment.Customer) (*payment.SessionHandle, error) {
	ctx, span := tracer.Start(ctx, "checkout.open_session")
	defer span.End()

	paymentCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	items := make([]payment.Item, len(order.Lines))
	for i, l := range order.Lines {
		items[i] = payment.Item{
			ID:       strconv.FormatInt(l.VariantID, 10),
			Name:     l.Name,
			Price:    l.UnitPrice,
			Quantity: l.Quantity,
		}
	}

	start := time.Now()
	handle, err := s.gateway.OpenSession(paymentCtx, payment.SessionRequest{
		OrderRef: order.ID,
		Amount:   order.Total,
		Currency: order.Currency,
		Customer: customer,
		Items:    items,
	})
	s.metrics.ObserveGateway(time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return handle, nil
}

func (s *CheckoutService) attachPayment(ctx context.Context, order *domain.Order, handle *payment.SessionHandle) error {
	record := &domain.PaymentRecord{
		OrderID:      order.ID,
		SessionToken: handle.Token,
		RedirectURL:  handle.RedirectURL,
		Status:       domain.PaymentStatusSessionOpened,
		Amount:       order.Total,
		Currency:     order.Currency,
	}

	err := s.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertPaymentRecord(ctx, record)
	})
	if err != nil {
		return fmt.Errorf("failed to attach payment session: %w", err)
	}
	order.Payment = record
	return nil
}
