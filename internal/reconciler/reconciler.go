package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/inventory"
	"github.com/nadhir24/bima-back-sub000/internal/logger"
	"github.com/nadhir24/bima-back-sub000/internal/metrics"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/nadhir24/bima-back-sub000/internal/reconciler")

// Reconciler applies the processor's asynchronous payment notifications to orders.
type Reconciler struct {
	store     repository.Store
	serverKey string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func New(store repository.Store, serverKey string, log zerolog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		store:     store,
		serverKey: serverKey,
		logger:    log.With().Str("component", "reconciler").Logger(),
		metrics:   m,
	}
}

// HandleNotification verifies raw against signature and applies it. The
// signature is checked before anything is read from the store. Handling the
// same notification twice leaves the order as the first delivery did.
func (r *Reconciler) HandleNotification(ctx context.Context, raw []byte, signature string) (Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile_notification")
	defer span.End()

	n, err := payment.ParseNotification(raw)
	if err != nil {
		r.metrics.NotificationOutcome("malformed")
		return Result{}, err
	}
	if !n.Verify(r.serverKey, signature) {
		r.metrics.NotificationOutcome("invalid_signature")
		r.logger.Warn().Str("order_id", n.OrderID).Msg("rejected notification with bad signature")
		return Result{}, ErrInvalidSignature
	}

	span.SetAttributes(
		attribute.String("order.id", n.OrderID),
		attribute.String("payment.transaction_status", n.TransactionStatus),
	)
	log := logger.Ctx(ctx, r.logger).With().
		Str("order_id", n.OrderID).
		Str("transaction_status", n.TransactionStatus).
		Str("transaction_id", n.TransactionID).
		Logger()

	var result Result
	err = r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		result, err = r.apply(ctx, tx, n, raw, log)
		return err
	})
	if err != nil {
		span.RecordError(err)
		r.metrics.NotificationOutcome("error")
		return Result{}, fmt.Errorf("failed to reconcile order %s: %w", n.OrderID, err)
	}

	r.metrics.NotificationOutcome(string(result.Outcome))
	log.Info().Str("outcome", string(result.Outcome)).Str("status", result.Status.String()).Msg("notification handled")
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, tx repository.Tx, n *payment.Notification, raw []byte, log zerolog.Logger) (Result, error) {
	target, moves := targetStatus(n)

	order, err := tx.GetOrderForUpdate(ctx, n.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		if target == domain.OrderStatusSettled {
			r.metrics.Anomaly("settlement_unknown_order")
			log.Error().Bool("anomaly", true).Str("gross_amount", n.GrossAmount).Msg("settlement for unknown order")
		}
		return Result{OrderID: n.OrderID, Outcome: OrderNotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if order.Status.IsTerminal() {
		if target == domain.OrderStatusSettled && order.Status != domain.OrderStatusSettled {
			r.metrics.Anomaly("late_settlement")
			log.Error().Bool("anomaly", true).Str("status", order.Status.String()).
				Msg("settlement arrived for an order whose stock was already released")
		}
		return Result{OrderID: order.ID, Outcome: AlreadyTerminal, Status: order.Status}, nil
	}
	if !moves {
		return Result{OrderID: order.ID, Outcome: Ignored, Status: order.Status}, nil
	}

	applied, err := tx.TransitionOrder(ctx, order.ID, target)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return Result{OrderID: order.ID, Outcome: AlreadyTerminal, Status: order.Status}, nil
	}
	order.Status = target
	outcome := Applied

	record := &domain.PaymentRecord{
		OrderID:       order.ID,
		TransactionID: n.TransactionID,
		Status:        n.TransactionStatus,
		Amount:        order.Total,
		Currency:      order.Currency,
		RawPayload:    raw,
	}

	if target.ReleasesStock() {
		err := inventory.ReleaseAll(ctx, tx.Ledger(), inventory.ReservationsFor(order), func(res inventory.Reservation) {
			r.metrics.Anomaly("release_missing_variant")
			log.Error().Bool("anomaly", true).Int64("variant_id", res.VariantID).Int64("quantity", res.Quantity).
				Msg("cannot restore stock of a missing variant")
		})
		if err != nil {
			return Result{}, err
		}
	} else {
		paid, matches := r.checkAmount(order, n)
		record.Amount = paid
		if !matches {
			if err := tx.FlagOrder(ctx, order.ID, domain.FlagReasonAmountMismatch); err != nil {
				return Result{}, err
			}
			order.Flagged, order.FlagReason = true, domain.FlagReasonAmountMismatch
			r.metrics.Anomaly(domain.FlagReasonAmountMismatch)
			log.Error().Bool("anomaly", true).
				Int64("expected", order.Total).Str("expected_currency", order.Currency).
				Str("gross_amount", n.GrossAmount).Str("currency", n.Currency).
				Msg("settled amount does not match order total")
			outcome = Anomaly
		}
	}

	if err := tx.UpsertPaymentRecord(ctx, record); err != nil {
		return Result{}, err
	}

	if err := r.addEvent(ctx, tx, order, domain.EventTypeForStatus(target), n.TransactionStatus); err != nil {
		return Result{}, err
	}
	if order.Flagged {
		if err := r.addEvent(ctx, tx, order, domain.EventOrderFlagged, order.FlagReason); err != nil {
			return Result{}, err
		}
	}

	return Result{OrderID: order.ID, Outcome: outcome, Status: target}, nil
}

// checkAmount compares the processor's gross amount with the order total in
// the order's currency. paid falls back to the order total when gross_amount
// cannot be read, in which case matches is false.
func (r *Reconciler) checkAmount(order *domain.Order, n *payment.Notification) (paid int64, matches bool) {
	if n.Currency != "" && !strings.EqualFold(n.Currency, order.Currency) {
		return order.Total, false
	}
	gross, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		return order.Total, false
	}
	expected := decimal.New(order.Total, -domain.CurrencyExponent(order.Currency))

	paid, err = payment.ParseAmount(n.GrossAmount, order.Currency)
	if err != nil {
		return order.Total, false
	}
	return paid, gross.Equal(expected)
}

func (r *Reconciler) addEvent(ctx context.Context, tx repository.Tx, order *domain.Order, eventType, reason string) error {
	event, err := repository.NewOutboxEvent(order.ID, eventType, domain.NewOrderEvent(order, reason))
	if err != nil {
		return err
	}
	return tx.AddOutboxEvent(ctx, event)
}
