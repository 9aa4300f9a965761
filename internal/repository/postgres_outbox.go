package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

func (s *PostgresStore) GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events WHERE published_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) MarkEventPublished(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event %s published: %w", eventID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertVariant(ctx context.Context, v *domain.Variant) error {
	query := `INSERT INTO variants (id, product_id, name, price, currency, quantity, active, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	          ON CONFLICT (id) DO UPDATE SET
	              product_id = EXCLUDED.product_id,
	              name       = EXCLUDED.name,
	              price      = EXCLUDED.price,
	              currency   = EXCLUDED.currency,
	              quantity   = EXCLUDED.quantity,
	              active     = EXCLUDED.active,
	              updated_at = NOW()`
	_, err := s.db.ExecContext(ctx, query, v.ID, v.ProductID, v.Name, v.Price, v.Currency, v.Quantity, v.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert variant %d: %w", v.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetVariant(ctx context.Context, variantID int64) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, name, price, currency, quantity, active, updated_at FROM variants WHERE id = $1`,
		variantID).Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Currency, &v.Quantity, &v.Active, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variant %d: %w", variantID, err)
	}
	return &v, nil
}
