package publisher

import (
	"context"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/metrics"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderAbandoner gives back the stock of a PENDING order that never got a
// payment session.
type OrderAbandoner interface {
	AbandonOrder(ctx context.Context, orderID, reason string) (bool, error)
}

type Config struct {
	EventTick    time.Duration
	RecoveryTick time.Duration
	BatchSize    int
	// OrphanAfter must stay well above the gateway timeout so a checkout
	// still waiting on the processor is never swept.
	OrphanAfter time.Duration
}

type OutboxPoller struct {
	cfg       Config
	store     repository.Store
	writer    MessageWriter
	abandoner OrderAbandoner
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(
	store repository.Store,
	writer MessageWriter,
	abandoner OrderAbandoner,
	cfg Config,
	log zerolog.Logger,
	m *metrics.Metrics,
) *OutboxPoller {
	if cfg.EventTick <= 0 {
		cfg.EventTick = time.Second
	}
	if cfg.RecoveryTick <= 0 {
		cfg.RecoveryTick = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.OrphanAfter <= 0 {
		cfg.OrphanAfter = 15 * time.Minute
	}
	return &OutboxPoller{
		cfg:       cfg,
		store:     store,
		writer:    writer,
		abandoner: abandoner,
		logger:    log.With().Str("component", "outbox_poller").Logger(),
		metrics:   m,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.cfg.EventTick)
	recoveryTicker := time.NewTicker(p.cfg.RecoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.sweepOrphans(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.store.GetUnpublishedEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.metrics.OutboxResult("failed")
			p.logger.Warn().Err(err).Str("event_id", event.ID).Str("event_type", event.EventType).Msg("failed to publish event")
			// keep per-order ordering: later events wait for the next tick
			return
		}

		if err := p.store.MarkEventPublished(ctx, event.ID); err != nil {
			p.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to mark event as published")
			return
		}
		p.metrics.OutboxResult("published")
	}
}

// sweepOrphans abandons PENDING orders left without a payment record, which
// happens when the process dies between placing the order and recording the session.
func (p *OutboxPoller) sweepOrphans(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.cfg.OrphanAfter)
	ids, err := p.store.ListOrphanOrders(ctx, cutoff, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list orphan orders")
		return
	}

	for _, id := range ids {
		abandoned, err := p.abandoner.AbandonOrder(ctx, id, "orphaned")
		if err != nil {
			p.logger.Error().Err(err).Str("order_id", id).Msg("failed to abandon orphan order")
			continue
		}
		if abandoned {
			p.metrics.OrphanSwept()
			p.logger.Warn().Str("order_id", id).Msg("orphan order abandoned, stock restored")
		}
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
