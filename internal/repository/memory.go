package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/inventory"
)

// MemoryStore is an in-process Store for local runs and tests. Stock lives
// in a MemoryLedger with per-variant locks; orders are serialized per order.
type MemoryStore struct {
	ledger *inventory.MemoryLedger

	mu         sync.Mutex
	orders     map[string]*domain.Order
	payments   map[string]*domain.PaymentRecord
	outbox     []*OutboxEvent
	orderLocks map[string]*sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledger:     inventory.NewMemoryLedger(),
		orders:     make(map[string]*domain.Order),
		payments:   make(map[string]*domain.PaymentRecord),
		orderLocks: make(map[string]*sync.Mutex),
		keyLocks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Ledger() *inventory.MemoryLedger {
	return s.ledger
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{store: s, locked: make(map[string]*sync.Mutex)}
	defer tx.unlockAll()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit(ctx)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(orderID)
}

// snapshot must be called with s.mu held.
func (s *MemoryStore) snapshot(orderID string) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if p, ok := s.payments[orderID]; ok {
		pc := *p
		cp.Payment = &pc
	}
	return &cp, nil
}

func (s *MemoryStore) ListOrphanOrders(_ context.Context, createdBefore time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphans []*domain.Order
	for id, o := range s.orders {
		if _, paid := s.payments[id]; paid {
			continue
		}
		if o.Status == domain.OrderStatusPending && o.CreatedAt.Before(createdBefore) {
			orphans = append(orphans, o)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].CreatedAt.Before(orphans[j].CreatedAt) })

	ids := make([]string, 0, len(orphans))
	for i, o := range orphans {
		if limit > 0 && i >= limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (s *MemoryStore) GetUnpublishedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*OutboxEvent
	for _, e := range s.outbox {
		if e.PublishedAt != nil {
			continue
		}
		cp := *e
		events = append(events, &cp)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *MemoryStore) MarkEventPublished(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == eventID && e.PublishedAt == nil {
			now := time.Now().UTC()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (s *MemoryStore) UpsertVariant(_ context.Context, v *domain.Variant) error {
	s.ledger.SetVariant(*v)
	return nil
}

func (s *MemoryStore) GetVariant(_ context.Context, variantID int64) (*domain.Variant, error) {
	v, ok := s.ledger.Variant(variantID)
	if !ok {
		return nil, ErrVariantNotFound
	}
	return &v, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) orderLock(orderID string) *sync.Mutex {
	return s.namedLock(s.orderLocks, orderID)
}

func (s *MemoryStore) namedLock(locks map[string]*sync.Mutex, name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := locks[name]
	if !ok {
		l = &sync.Mutex{}
		locks[name] = l
	}
	return l
}

// memTx applies reservations immediately and undoes them on rollback.
// Releases are deferred to commit so a rolled back unit never hands out stock.
type memTx struct {
	store    *MemoryStore
	undo     []func()
	releases []inventory.Reservation
	locked   map[string]*sync.Mutex
}

func (t *memTx) Ledger() inventory.Ledger {
	return &memTxLedger{tx: t}
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memTx) commit(ctx context.Context) {
	for _, r := range t.releases {
		_ = t.store.ledger.Release(ctx, r)
	}
}

func (t *memTx) unlockAll() {
	for _, l := range t.locked {
		l.Unlock()
	}
}

func (t *memTx) lockOrder(orderID string) {
	if _, ok := t.locked[orderID]; ok {
		return
	}
	l := t.store.orderLock(orderID)
	l.Lock()
	t.locked[orderID] = l
}

func (t *memTx) ClaimCheckout(_ context.Context, key string) (string, error) {
	name := "key:" + key
	if _, ok := t.locked[name]; !ok {
		l := t.store.namedLock(t.store.keyLocks, key)
		l.Lock()
		t.locked[name] = l
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.IdempotencyKey == key {
			return id, nil
		}
	}
	return "", nil
}

func (t *memTx) CreateOrder(_ context.Context, order *domain.Order) error {
	t.lockOrder(order.ID)

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}
	if order.IdempotencyKey != "" {
		for _, o := range s.orders {
			if o.Status == domain.OrderStatusPending && o.IdempotencyKey == order.IdempotencyKey {
				return ErrDuplicateOrder
			}
		}
	}
	cp := *order
	cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
	cp.Payment = nil
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.orders[order.ID] = &cp
	t.undo = append(t.undo, func() {
		s.mu.Lock()
		delete(s.orders, order.ID)
		s.mu.Unlock()
	})
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID string) (*domain.Order, error) {
	s := t.store
	s.mu.Lock()
	_, exists := s.orders[orderID]
	s.mu.Unlock()
	if !exists {
		return nil, ErrOrderNotFound
	}

	t.lockOrder(orderID)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(orderID)
}

func (t *memTx) TransitionOrder(_ context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	prev, prevUpdated := o.Status, o.UpdatedAt
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	t.undo = append(t.undo, func() {
		s.mu.Lock()
		o.Status, o.UpdatedAt = prev, prevUpdated
		s.mu.Unlock()
	})
	return true, nil
}

func (t *memTx) DeletePendingOrder(_ context.Context, orderID string) (bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	if _, paid := s.payments[orderID]; paid {
		return false, nil
	}
	delete(s.orders, orderID)
	t.undo = append(t.undo, func() {
		s.mu.Lock()
		s.orders[orderID] = o
		s.mu.Unlock()
	})
	return true, nil
}

func (t *memTx) FlagOrder(_ context.Context, orderID, reason string) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	prevFlag, prevReason := o.Flagged, o.FlagReason
	o.Flagged, o.FlagReason = true, reason
	t.undo = append(t.undo, func() {
		s.mu.Lock()
		o.Flagged, o.FlagReason = prevFlag, prevReason
		s.mu.Unlock()
	})
	return nil
}

func (t *memTx) UpsertPaymentRecord(_ context.Context, record *domain.PaymentRecord) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[record.OrderID]; !ok {
		return ErrOrderNotFound
	}

	prev, existed := s.payments[record.OrderID]
	now := time.Now().UTC()
	next := *record
	if existed {
		next.CreatedAt = prev.CreatedAt
		next.SessionToken = coalesce(record.SessionToken, prev.SessionToken)
		next.RedirectURL = coalesce(record.RedirectURL, prev.RedirectURL)
		next.TransactionID = coalesce(record.TransactionID, prev.TransactionID)
		if len(next.RawPayload) == 0 {
			next.RawPayload = prev.RawPayload
		}
	} else {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	s.payments[record.OrderID] = &next

	t.undo = append(t.undo, func() {
		s.mu.Lock()
		if existed {
			s.payments[record.OrderID] = prev
		} else {
			delete(s.payments, record.OrderID)
		}
		s.mu.Unlock()
	})
	return nil
}

func (t *memTx) AddOutboxEvent(_ context.Context, event *OutboxEvent) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox = append(s.outbox, event)
	t.undo = append(t.undo, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.outbox {
			if e == event {
				s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
				return
			}
		}
	})
	return nil
}

type memTxLedger struct {
	tx *memTx
}

func (l *memTxLedger) Reserve(ctx context.Context, variantID int64, qty int64) (inventory.Reservation, error) {
	base := l.tx.store.ledger
	r, err := base.Reserve(ctx, variantID, qty)
	if err != nil {
		return inventory.Reservation{}, err
	}
	l.tx.undo = append(l.tx.undo, func() {
		_ = base.Release(context.Background(), r)
	})
	return r, nil
}

func (l *memTxLedger) Release(_ context.Context, r inventory.Reservation) error {
	if r.Quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if _, ok := l.tx.store.ledger.Variant(r.VariantID); !ok {
		return inventory.ErrVariantNotFound
	}
	l.tx.releases = append(l.tx.releases, r)
	return nil
}

func (l *memTxLedger) Commit(_ context.Context, _ inventory.Reservation) error {
	return nil
}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
