package reconciler

import (
	"errors"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
)

var ErrInvalidSignature = errors.New("invalid notification signature")

type Outcome string

const (
	// Applied means the order moved out of PENDING.
	Applied Outcome = "applied"
	// AlreadyTerminal is a redelivery or a late notification; nothing changed.
	AlreadyTerminal Outcome = "already_terminal"
	// Ignored statuses carry no transition (pending, capture under challenge, refunds).
	Ignored       Outcome = "ignored"
	OrderNotFound Outcome = "order_not_found"
	// Anomaly is an applied settlement whose amount disagrees with the order.
	Anomaly Outcome = "anomaly"
)

type Result struct {
	OrderID string
	Outcome Outcome
	// Status is the order status after the notification was handled.
	Status domain.OrderStatus
}

// targetStatus maps a processor transaction status to the order status it
// settles on. ok is false for statuses that do not move the order.
func targetStatus(n *payment.Notification) (domain.OrderStatus, bool) {
	switch n.TransactionStatus {
	case payment.TransactionSettlement:
		return domain.OrderStatusSettled, true
	case payment.TransactionCapture:
		if n.FraudStatus == "" || n.FraudStatus == payment.FraudAccept {
			return domain.OrderStatusSettled, true
		}
		return "", false
	case payment.TransactionDeny, payment.TransactionCancel, payment.TransactionFailure:
		return domain.OrderStatusFailed, true
	case payment.TransactionExpire:
		return domain.OrderStatusExpired, true
	default:
		return "", false
	}
}
