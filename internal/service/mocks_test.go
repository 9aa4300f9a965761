package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
)

// MockCartStore implements CartStore for testing
type MockCartStore struct {
	mu       sync.Mutex
	lines    map[string][]domain.CartLine
	ListErr  error
	ClearErr error
	cleared  []string
}

func NewMockCartStore() *MockCartStore {
	return &MockCartStore{lines: make(map[string][]domain.CartLine)}
}

func (m *MockCartStore) Put(identity domain.Identity, lines ...domain.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[identity.Key()] = lines
}

func (m *MockCartStore) ListLines(_ context.Context, identity domain.Identity) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]domain.CartLine(nil), m.lines[identity.Key()]...), nil
}

func (m *MockCartStore) Clear(_ context.Context, identity domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	delete(m.lines, identity.Key())
	m.cleared = append(m.cleared, identity.Key())
	return nil
}

func (m *MockCartStore) Cleared() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cleared...)
}

// MockGateway implements PaymentGateway for testing
type MockGateway struct {
	mu       sync.Mutex
	Err      error
	Delay    time.Duration
	requests []payment.SessionRequest
}

func (m *MockGateway) OpenSession(ctx context.Context, req payment.SessionRequest) (*payment.SessionHandle, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	err, delay := m.Err, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &payment.GatewayError{Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	return &payment.SessionHandle{
		Token:       "tok-" + req.OrderRef,
		RedirectURL: "https://pay.example/" + req.OrderRef,
	}, nil
}

func (m *MockGateway) Requests() []payment.SessionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.SessionRequest(nil), m.requests...)
}

// failingPaymentStore fails every payment record write.
type failingPaymentStore struct {
	*repository.MemoryStore
}

func (s *failingPaymentStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &failingPaymentTx{Tx: tx})
	})
}

type failingPaymentTx struct {
	repository.Tx
}

func (t *failingPaymentTx) UpsertPaymentRecord(context.Context, *domain.PaymentRecord) error {
	return errors.New("disk full")
}
