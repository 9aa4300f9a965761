package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/inventory"
)

type pgTx struct {
	tx     *sql.Tx
	ledger *inventory.PostgresLedger
}

func (t *pgTx) Ledger() inventory.Ledger {
	return t.ledger
}

func (t *pgTx) ClaimCheckout(ctx context.Context, key string) (string, error) {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return "", fmt.Errorf("failed to lock checkout key: %w", err)
	}

	var id string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE idempotency_key = $1 AND status = $2`,
		key, domain.OrderStatusPending).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up checkout key: %w", err)
	}
	return id, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, idempotency_key, user_id, guest_session_id, currency, total, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	_, err := t.tx.ExecContext(ctx, query,
		order.ID,
		idempotencyKey(order),
		nullString(order.Identity.UserID),
		nullString(order.Identity.GuestSessionID),
		order.Currency,
		order.Total,
		order.Status,
		order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	lineQuery := `INSERT INTO order_lines (order_id, variant_id, name, unit_price, quantity) VALUES ($1, $2, $3, $4, $5)`
	for _, line := range order.Lines {
		if _, err := t.tx.ExecContext(ctx, lineQuery, order.ID, line.VariantID, line.Name, line.UnitPrice, line.Quantity); err != nil {
			return fmt.Errorf("failed to insert order line for variant %d: %w", line.VariantID, err)
		}
	}
	return nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	return loadOrder(ctx, t.tx, orderID, true)
}

func (t *pgTx) TransitionOrder(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		status, orderID, domain.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to transition order %s: %w", orderID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (t *pgTx) DeletePendingOrder(ctx context.Context, orderID string) (bool, error) {
	query := `DELETE FROM orders o
	          WHERE o.id = $1 AND o.status = $2
	            AND NOT EXISTS (SELECT 1 FROM payment_records p WHERE p.order_id = o.id)`
	result, err := t.tx.ExecContext(ctx, query, orderID, domain.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (t *pgTx) FlagOrder(ctx context.Context, orderID, reason string) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET flagged = TRUE, flag_reason = $1, updated_at = NOW() WHERE id = $2`,
		reason, orderID)
	if err != nil {
		return fmt.Errorf("failed to flag order %s: %w", orderID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) UpsertPaymentRecord(ctx context.Context, record *domain.PaymentRecord) error {
	query := `INSERT INTO payment_records
	              (order_id, session_token, redirect_url, transaction_id, status, amount, currency, raw_payload, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	          ON CONFLICT (order_id) DO UPDATE SET
	              session_token  = COALESCE(EXCLUDED.session_token, payment_records.session_token),
	              redirect_url   = COALESCE(EXCLUDED.redirect_url, payment_records.redirect_url),
	              transaction_id = COALESCE(EXCLUDED.transaction_id, payment_records.transaction_id),
	              status         = EXCLUDED.status,
	              amount         = EXCLUDED.amount,
	              raw_payload    = COALESCE(EXCLUDED.raw_payload, payment_records.raw_payload),
	              updated_at     = NOW()`

	var raw any
	if len(record.RawPayload) > 0 {
		raw = string(record.RawPayload)
	}
	_, err := t.tx.ExecContext(ctx, query,
		record.OrderID,
		nullString(record.SessionToken),
		nullString(record.RedirectURL),
		nullString(record.TransactionID),
		record.Status,
		record.Amount,
		record.Currency,
		raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment record for order %s: %w", record.OrderID, err)
	}
	return nil
}

func (t *pgTx) AddOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AggregateID, event.EventType, string(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return loadOrder(ctx, s.db, orderID, false)
}

func (s *PostgresStore) ListOrphanOrders(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	query := `SELECT o.id FROM orders o
	          LEFT JOIN payment_records p ON p.order_id = o.id
	          WHERE o.status = $1 AND p.order_id IS NULL AND o.created_at < $2
	          ORDER BY o.created_at
	          LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, domain.OrderStatusPending, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphan order: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadOrder(ctx context.Context, q querier, orderID string, forUpdate bool) (*domain.Order, error) {
	if !validOrderID(orderID) {
		return nil, ErrOrderNotFound
	}

	query := `SELECT id, idempotency_key, user_id, guest_session_id, currency, total, status, flagged, flag_reason, created_at, updated_at
	          FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		o                     domain.Order
		userID, guestID, flag sql.NullString
	)
	err := q.QueryRowContext(ctx, query, orderID).Scan(
		&o.ID, &o.IdempotencyKey, &userID, &guestID, &o.Currency, &o.Total, &o.Status, &o.Flagged, &flag, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	o.Identity = domain.Identity{UserID: userID.String, GuestSessionID: guestID.String}
	o.FlagReason = flag.String

	lines, err := loadOrderLines(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines

	payment, err := loadPaymentRecord(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	o.Payment = payment

	return &o, nil
}

func loadOrderLines(ctx context.Context, q querier, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT variant_id, name, unit_price, quantity FROM order_lines WHERE order_id = $1 ORDER BY variant_id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.VariantID, &l.Name, &l.UnitPrice, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func loadPaymentRecord(ctx context.Context, q querier, orderID string) (*domain.PaymentRecord, error) {
	var (
		p                     domain.PaymentRecord
		token, redirect, txID sql.NullString
		raw                   []byte
	)
	err := q.QueryRowContext(ctx,
		`SELECT order_id, session_token, redirect_url, transaction_id, status, amount, currency, raw_payload, created_at, updated_at
		 FROM payment_records WHERE order_id = $1`, orderID).
		Scan(&p.OrderID, &token, &redirect, &txID, &p.Status, &p.Amount, &p.Currency, &raw, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}
	p.SessionToken = token.String
	p.RedirectURL = redirect.String
	p.TransactionID = txID.String
	p.RawPayload = raw
	return &p, nil
}

func idempotencyKey(o *domain.Order) string {
	if o.IdempotencyKey != "" {
		return o.IdempotencyKey
	}
	return o.ID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
