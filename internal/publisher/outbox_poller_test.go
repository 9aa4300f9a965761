package publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/rs/zerolog"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

func addEvent(t *testing.T, store repository.Store, orderID, eventType string) *repository.OutboxEvent {
	t.Helper()
	event, err := repository.NewOutboxEvent(orderID, eventType, map[string]string{"order_id": orderID})
	require.NoError(t, err)
	err = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.AddOutboxEvent(ctx, event)
	})
	require.NoError(t, err)
	return event
}

func storeOrder(t *testing.T, store repository.Store, createdAt time.Time, withPayment bool) string {
	t.Helper()
	order := &domain.Order{
		ID:        uuid.NewString(),
		Identity:  domain.GuestIdentity("g-1"),
		Currency:  "IDR",
		Total:     1000,
		Status:    domain.OrderStatusPending,
		CreatedAt: createdAt,
	}
	order.IdempotencyKey = order.ID
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if !withPayment {
			return nil
		}
		return tx.UpsertPaymentRecord(ctx, &domain.PaymentRecord{OrderID: order.ID, SessionToken: "tok", Status: domain.PaymentStatusSessionOpened, Amount: 1000, Currency: "IDR"})
	})
	require.NoError(t, err)
	return order.ID
}

func header(msg kafkaGo.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestOutboxPoller_PublishesAndMarksEvents(t *testing.T) {
	store := repository.NewMemoryStore()
	writer := NewMockWriter()
	poller := NewOutboxPoller(store, writer, &MockAbandoner{}, Config{}, zerolog.Nop(), nil)

	first := addEvent(t, store, "order-1", domain.EventOrderPlaced)
	addEvent(t, store, "order-1", domain.EventOrderSettled)

	poller.processUnpublishedEvents(context.Background())

	msgs := writer.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "order-1", string(msgs[0].Key))
	assert.Equal(t, domain.EventOrderPlaced, header(msgs[0], "event_type"))
	assert.Equal(t, first.ID, header(msgs[0], "event_id"))
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(msgs[0].Value))
	assert.Equal(t, domain.EventOrderSettled, header(msgs[1], "event_type"))

	pending, err := store.GetUnpublishedEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// nothing left, nothing resent
	poller.processUnpublishedEvents(context.Background())
	assert.Len(t, writer.Messages(), 2)
}

func TestOutboxPoller_FailedPublishIsRetried(t *testing.T) {
	store := repository.NewMemoryStore()
	writer := NewMockWriter()
	writer.FailAfter = 1
	writer.Err = errors.New("broker not available")
	poller := NewOutboxPoller(store, writer, &MockAbandoner{}, Config{}, zerolog.Nop(), nil)

	addEvent(t, store, "order-1", domain.EventOrderPlaced)
	addEvent(t, store, "order-1", domain.EventOrderExpired)
	addEvent(t, store, "order-2", domain.EventOrderPlaced)

	poller.processUnpublishedEvents(context.Background())
	require.Len(t, writer.Messages(), 1)

	pending, err := store.GetUnpublishedEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.EventOrderExpired, pending[0].EventType)

	writer.FailAfter = -1
	poller.processUnpublishedEvents(context.Background())

	msgs := writer.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.EventOrderExpired, header(msgs[1], "event_type"))
	assert.Equal(t, "order-2", string(msgs[2].Key))
}

func TestOutboxPoller_SweepsOnlyStaleOrphans(t *testing.T) {
	store := repository.NewMemoryStore()
	abandoner := &MockAbandoner{Result: true}
	poller := NewOutboxPoller(store, NewMockWriter(), abandoner, Config{OrphanAfter: 15 * time.Minute}, zerolog.Nop(), nil)

	stale := storeOrder(t, store, time.Now().UTC().Add(-time.Hour), false)
	storeOrder(t, store, time.Now().UTC(), false)
	storeOrder(t, store, time.Now().UTC().Add(-time.Hour), true)

	poller.sweepOrphans(context.Background())

	assert.Equal(t, []string{stale}, abandoner.Calls())
}

func TestOutboxPoller_SweepContinuesAfterFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	abandoner := &MockAbandoner{Err: errors.New("deadlock detected")}
	poller := NewOutboxPoller(store, NewMockWriter(), abandoner, Config{}, zerolog.Nop(), nil)

	storeOrder(t, store, time.Now().UTC().Add(-time.Hour), false)
	assert.NotPanics(t, func() { poller.sweepOrphans(context.Background()) })
}

func TestOutboxPoller_RunStopsOnCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	writer := NewMockWriter()
	poller := NewOutboxPoller(store, writer, &MockAbandoner{}, Config{
		EventTick:    10 * time.Millisecond,
		RecoveryTick: 10 * time.Millisecond,
	}, zerolog.Nop(), nil)
	addEvent(t, store, "order-1", domain.EventOrderPlaced)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(writer.Messages()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	require.NoError(t, poller.Close())
	assert.True(t, writer.closed)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}
	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	const topic = "storefront.orders"
	createTopic(t, brokerAddr, topic)

	store := repository.NewMemoryStore()
	writer := NewKafkaWriter(topic, brokerAddr)
	poller := NewOutboxPoller(store, writer, &MockAbandoner{}, Config{}, zerolog.Nop(), nil)
	defer poller.Close()

	event := addEvent(t, store, "order-42", domain.EventOrderPlaced)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	poller.processUnpublishedEvents(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:   []string{brokerAddr},
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-42", string(msg.Key))
	assert.Equal(t, domain.EventOrderPlaced, header(msg, "event_type"))
	assert.Equal(t, event.ID, header(msg, "event_id"))

	pending, err := store.GetUnpublishedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
