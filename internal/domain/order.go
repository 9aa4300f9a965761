package domain

import (
	"encoding/json"
	"time"
)

const FlagReasonAmountMismatch = "amount_mismatch"

// Order is created once per checkout. Only Status, Payment and the flag change afterwards.
type Order struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"-"`
	Identity       Identity       `json:"identity"`
	Currency       string         `json:"currency"`
	Total          int64          `json:"total"`
	Status         OrderStatus    `json:"status"`
	Flagged        bool           `json:"flagged"`
	FlagReason     string         `json:"flag_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Lines          []OrderLine    `json:"lines"`
	Payment        *PaymentRecord `json:"payment,omitempty"`
}

// OrderLine is a price and name snapshot taken at checkout time.
type OrderLine struct {
	VariantID int64  `json:"variant_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

func (l OrderLine) Extension() int64 {
	return l.UnitPrice * l.Quantity
}

func SumLines(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Extension()
	}
	return total
}

// PaymentRecord mirrors the processor's session/transaction for one order.
type PaymentRecord struct {
	OrderID       string          `json:"order_id"`
	SessionToken  string          `json:"session_token,omitempty"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        string          `json:"status"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

const (
	PaymentStatusSessionOpened = "session_opened"
)
