package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/inventory"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrDuplicateOrder  = errors.New("order already exists")
)

// Tx is one unit of work. Everything done through it, including the stock
// movements of its Ledger, commits or rolls back together.
type Tx interface {
	Ledger() inventory.Ledger

	// ClaimCheckout serializes checkouts sharing an idempotency key until the
	// unit of work ends and returns the id of a PENDING order already holding it.
	ClaimCheckout(ctx context.Context, key string) (string, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
	// GetOrderForUpdate loads the order with lines and payment record and
	// holds it against concurrent writers until the unit of work ends.
	GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error)
	// TransitionOrder moves a PENDING order to status; false when it was not PENDING.
	TransitionOrder(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error)
	// DeletePendingOrder removes an order that is PENDING and has no payment record.
	DeletePendingOrder(ctx context.Context, orderID string) (bool, error)
	FlagOrder(ctx context.Context, orderID, reason string) error
	UpsertPaymentRecord(ctx context.Context, record *domain.PaymentRecord) error
	AddOutboxEvent(ctx context.Context, event *OutboxEvent) error
}

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrphanOrders(ctx context.Context, createdBefore time.Time, limit int) ([]string, error)

	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, eventID string) error

	UpsertVariant(ctx context.Context, v *domain.Variant) error
	GetVariant(ctx context.Context, variantID int64) (*domain.Variant, error)

	Close() error
}

type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

func NewOutboxEvent(aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// validOrderID filters out references that can never match an order id, so
// a junk reference from a webhook does not reach the database as a type error.
func validOrderID(orderID string) bool {
	_, err := uuid.Parse(orderID)
	return err == nil
}
