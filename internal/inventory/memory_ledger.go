package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

type memoryVariant struct {
	mu      sync.Mutex
	variant domain.Variant
}

// MemoryLedger keeps variants in process memory. Every variant has its own
// mutex, so contention on one variant never blocks another.
type MemoryLedger struct {
	mu       sync.RWMutex
	variants map[int64]*memoryVariant
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{variants: make(map[int64]*memoryVariant)}
}

// SetVariant creates or replaces a variant (used for seeding).
func (l *MemoryLedger) SetVariant(v domain.Variant) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.variants[v.ID]; ok {
		existing.mu.Lock()
		existing.variant = v
		existing.mu.Unlock()
		return
	}
	l.variants[v.ID] = &memoryVariant{variant: v}
}

// Variant returns a copy of the current variant state.
func (l *MemoryLedger) Variant(id int64) (domain.Variant, bool) {
	mv, ok := l.lookup(id)
	if !ok {
		return domain.Variant{}, false
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	return mv.variant, true
}

func (l *MemoryLedger) lookup(id int64) (*memoryVariant, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	mv, ok := l.variants[id]
	return mv, ok
}

func (l *MemoryLedger) Reserve(ctx context.Context, variantID int64, qty int64) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}

	mv, ok := l.lookup(variantID)
	if !ok {
		return Reservation{}, fmt.Errorf("%w: variant %d does not exist", ErrInsufficientStock, variantID)
	}

	mv.mu.Lock()
	defer mv.mu.Unlock()

	if !mv.variant.Active {
		return Reservation{}, fmt.Errorf("%w: variant %d is disabled", ErrInsufficientStock, variantID)
	}
	if mv.variant.Quantity < qty {
		return Reservation{}, fmt.Errorf("%w: variant %d has %d, requested %d", ErrInsufficientStock, variantID, mv.variant.Quantity, qty)
	}
	mv.variant.Quantity -= qty

	return Reservation{
		VariantID: variantID,
		Quantity:  qty,
		Name:      mv.variant.Name,
		UnitPrice: mv.variant.Price,
		Currency:  mv.variant.Currency,
	}, nil
}

func (l *MemoryLedger) Release(_ context.Context, r Reservation) error {
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	mv, ok := l.lookup(r.VariantID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrVariantNotFound, r.VariantID)
	}

	mv.mu.Lock()
	mv.variant.Quantity += r.Quantity
	mv.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Commit(_ context.Context, _ Reservation) error {
	return nil
}
