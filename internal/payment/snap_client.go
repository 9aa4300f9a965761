package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL   string
	ServerKey string
	Timeout   time.Duration

	// breaker
	MaxFailures  uint32
	OpenTimeout  time.Duration
	HalfOpenReqs uint32
}

// SnapClient opens hosted payment sessions. It never retries: the order id is
// the idempotency key on the processor side and a retry belongs to the caller.
type SnapClient struct {
	baseURL   string
	serverKey string
	timeout   time.Duration
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*SessionHandle]
}

func NewSnapClient(cfg Config) *SnapClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenReqs == 0 {
		cfg.HalfOpenReqs = 1
	}

	maxFailures := cfg.MaxFailures
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.HalfOpenReqs,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var gwErr *GatewayError
			if errors.As(err, &gwErr) && gwErr.Rejected() {
				return true
			}
			return err == nil
		},
	}

	return &SnapClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		serverKey: cfg.ServerKey,
		timeout:   cfg.Timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[*SessionHandle](settings),
	}
}

type snapTransactionDetails struct {
	OrderID     string      `json:"order_id"`
	GrossAmount json.Number `json:"gross_amount"`
}

type snapItem struct {
	ID       string      `json:"id"`
	Price    json.Number `json:"price"`
	Quantity int64       `json:"quantity"`
	Name     string      `json:"name"`
}

type snapRequest struct {
	TransactionDetails snapTransactionDetails `json:"transaction_details"`
	CustomerDetails    *Customer              `json:"customer_details,omitempty"`
	ItemDetails        []snapItem             `json:"item_details,omitempty"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

func (c *SnapClient) OpenSession(ctx context.Context, req SessionRequest) (*SessionHandle, error) {
	handle, err := c.breaker.Execute(func() (*SessionHandle, error) {
		return c.createTransaction(ctx, req)
	})
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return nil, gwErr
		}
		// open or half-open breaker rejections land here
		return nil, &GatewayError{Err: err}
	}
	return handle, nil
}

func (c *SnapClient) createTransaction(ctx context.Context, req SessionRequest) (*SessionHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed snapResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
			return nil, &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	if resp.StatusCode >= 300 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Messages: parsed.ErrorMessages}
	}
	if parsed.Token == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: errors.New("response carries no session token")}
	}

	return &SessionHandle{Token: parsed.Token, RedirectURL: parsed.RedirectURL}, nil
}

func (c *SnapClient) buildRequest(req SessionRequest) snapRequest {
	out := snapRequest{
		TransactionDetails: snapTransactionDetails{
			OrderID:     req.OrderRef,
			GrossAmount: json.Number(FormatAmount(req.Amount, req.Currency)),
		},
	}
	if req.Customer != (Customer{}) {
		customer := req.Customer
		out.CustomerDetails = &customer
	}
	for _, it := range req.Items {
		out.ItemDetails = append(out.ItemDetails, snapItem{
			ID:       it.ID,
			Price:    json.Number(FormatAmount(it.Price, req.Currency)),
			Quantity: it.Quantity,
			Name:     truncate(it.Name, 50),
		})
	}
	return out
}

// item names longer than 50 characters are rejected by the processor
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// State exposes the breaker state for health reporting.
func (c *SnapClient) State() string {
	return c.breaker.State().String()
}
