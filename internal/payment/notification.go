package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedNotification = errors.New("malformed payment notification")

// Transaction statuses reported by the processor.
const (
	TransactionCapture       = "capture"
	TransactionSettlement    = "settlement"
	TransactionPending       = "pending"
	TransactionDeny          = "deny"
	TransactionCancel        = "cancel"
	TransactionExpire        = "expire"
	TransactionFailure       = "failure"
	TransactionRefund        = "refund"
	TransactionPartialRefund = "partial_refund"

	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

// Notification is the asynchronous HTTP notification body. Only the fields
// that feed reconciliation are decoded; the raw bytes are kept for audit.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	SignatureKey      string `json:"signature_key"`
}

func ParseNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("%w: order_id, status_code, gross_amount and transaction_status are required", ErrMalformedNotification)
	}
	return &n, nil
}

// Verify checks the notification against signature, or against the
// embedded signature_key when no separate signature was supplied.
func (n *Notification) Verify(serverKey, signature string) bool {
	if signature == "" {
		signature = n.SignatureKey
	}
	return VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey, signature)
}
