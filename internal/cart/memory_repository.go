package cart

import (
	"context"
	"sync"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

type MemoryRepository struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryRepository) GetCart(_ context.Context, identityKey string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[identityKey]
	if !ok {
		return nil, ErrCartNotFound
	}
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &cp, nil
}

func (m *MemoryRepository) UpsertLine(_ context.Context, identityKey string, variantID, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c, ok := m.carts[identityKey]
	if !ok {
		c = &domain.Cart{IdentityKey: identityKey, CreatedAt: now}
		m.carts[identityKey] = c
	}
	c.UpdatedAt = now
	for i := range c.Lines {
		if c.Lines[i].VariantID == variantID {
			c.Lines[i].Quantity += qty
			return nil
		}
	}
	c.Lines = append(c.Lines, domain.CartLine{VariantID: variantID, Quantity: qty, AddedAt: now})
	return nil
}

func (m *MemoryRepository) RemoveLine(_ context.Context, identityKey string, variantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[identityKey]
	if !ok {
		return ErrLineNotFound
	}
	for i := range c.Lines {
		if c.Lines[i].VariantID == variantID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrLineNotFound
}

func (m *MemoryRepository) DeleteCart(_ context.Context, identityKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[identityKey]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, identityKey)
	return nil
}
