package payment

import (
	"errors"
	"fmt"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type Customer struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Item struct {
	ID       string
	Name     string
	Price    int64
	Quantity int64
}

// SessionRequest is what the store asks the processor to charge. Amount is
// in minor units of Currency and always computed server side.
type SessionRequest struct {
	OrderRef string
	Amount   int64
	Currency string
	Customer Customer
	Items    []Item
}

type SessionHandle struct {
	Token       string
	RedirectURL string
}

// GatewayError is returned for every failed session request.
type GatewayError struct {
	StatusCode int
	Messages   []string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode != 0 && len(e.Messages) > 0:
		return fmt.Sprintf("payment gateway returned %d: %v", e.StatusCode, e.Messages)
	case e.StatusCode != 0:
		return fmt.Sprintf("payment gateway returned %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("payment gateway call failed: %v", e.Err)
	default:
		return "payment gateway call failed"
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayUnavailable
}

// Rejected reports a 4xx answer: the processor is up but refused this request.
func (e *GatewayError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
