package http

import (
	"context"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/reconciler"
	"github.com/nadhir24/bima-back-sub000/internal/service"
)

type CheckoutMock struct {
	result *service.CheckoutResult
	err    error
	got    service.CheckoutRequest
}

func (m *CheckoutMock) Checkout(_ context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type ReconcilerMock struct {
	err       error
	raw       []byte
	signature string
	calls     int
}

func (m *ReconcilerMock) HandleNotification(_ context.Context, raw []byte, signature string) (reconciler.Result, error) {
	m.calls++
	m.raw, m.signature = raw, signature
	if m.err != nil {
		return reconciler.Result{}, m.err
	}
	return reconciler.Result{Outcome: reconciler.Applied}, nil
}

type OrdersMock struct {
	order *domain.Order
	err   error
}

func (m OrdersMock) GetOrder(_ context.Context, _ domain.Identity, _ string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}
