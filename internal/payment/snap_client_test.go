package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *SnapClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.ServerKey == "" {
		cfg.ServerKey = "SB-server-key"
	}
	return NewSnapClient(cfg)
}

func TestSnapClient_OpenSession_Success(t *testing.T) {
	var got snapRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snap/v1/transactions", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "SB-server-key", user)
		assert.Empty(t, pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"tok-1","redirect_url":"https://app.sandbox/snap/v2/vtweb/tok-1"}`))
	}, Config{})

	handle, err := client.OpenSession(context.Background(), SessionRequest{
		OrderRef: "order-1",
		Amount:   80000,
		Currency: "IDR",
		Customer: Customer{FirstName: "Ayu", Email: "ayu@example.com"},
		Items: []Item{
			{ID: "1", Name: "Mug", Price: 50000, Quantity: 1},
			{ID: "2", Name: "Cap", Price: 30000, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", handle.Token)
	assert.Equal(t, "https://app.sandbox/snap/v2/vtweb/tok-1", handle.RedirectURL)

	assert.Equal(t, "order-1", got.TransactionDetails.OrderID)
	assert.Equal(t, json.Number("80000"), got.TransactionDetails.GrossAmount)
	require.Len(t, got.ItemDetails, 2)
	require.NotNil(t, got.CustomerDetails)
	assert.Equal(t, "ayu@example.com", got.CustomerDetails.Email)
}

func TestSnapClient_OpenSession_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_messages":["transaction_details.order_id has already been taken"]}`))
	}, Config{MaxFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := client.OpenSession(context.Background(), SessionRequest{OrderRef: "dup", Amount: 1, Currency: "IDR"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)

		var gwErr *GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
		assert.Contains(t, gwErr.Messages[0], "already been taken")
	}
	// rejections do not open the breaker
	assert.Equal(t, "closed", client.State())
}

func TestSnapClient_OpenSession_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.OpenSession(context.Background(), SessionRequest{OrderRef: "slow", Amount: 1, Currency: "IDR"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestSnapClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, Config{MaxFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 4; i++ {
		_, err := client.OpenSession(context.Background(), SessionRequest{OrderRef: "o", Amount: 1, Currency: "IDR"})
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "open", client.State())
}

func TestSnapClient_MissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}, Config{})

	_, err := client.OpenSession(context.Background(), SessionRequest{OrderRef: "o", Amount: 1, Currency: "IDR"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
