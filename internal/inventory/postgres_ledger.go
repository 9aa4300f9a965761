package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is satisfied by *sql.DB and *sql.Tx. The ledger is meant to be bound to
// a transaction so that its row locks live as long as the checkout unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresLedger struct {
	db DBTX
}

func NewPostgresLedger(db DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Reserve(ctx context.Context, variantID int64, qty int64) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}

	res := Reservation{VariantID: variantID, Quantity: qty}
	var (
		available int64
		active    bool
	)
	query := `SELECT name, price, currency, quantity, active FROM variants WHERE id = $1 FOR UPDATE`
	err := l.db.QueryRowContext(ctx, query, variantID).
		Scan(&res.Name, &res.UnitPrice, &res.Currency, &available, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, fmt.Errorf("%w: variant %d does not exist", ErrInsufficientStock, variantID)
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to lock variant %d: %w", variantID, err)
	}
	if !active {
		return Reservation{}, fmt.Errorf("%w: variant %d is disabled", ErrInsufficientStock, variantID)
	}
	if available < qty {
		return Reservation{}, fmt.Errorf("%w: variant %d has %d, requested %d", ErrInsufficientStock, variantID, available, qty)
	}

	// the quantity guard keeps the decrement safe even without the row lock
	result, err := l.db.ExecContext(ctx,
		`UPDATE variants SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2 AND quantity >= $1`,
		qty, variantID)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to decrement variant %d: %w", variantID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return Reservation{}, fmt.Errorf("%w: variant %d", ErrInsufficientStock, variantID)
	}

	return res, nil
}

func (l *PostgresLedger) Release(ctx context.Context, r Reservation) error {
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	result, err := l.db.ExecContext(ctx,
		`UPDATE variants SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2`,
		r.Quantity, r.VariantID)
	if err != nil {
		return fmt.Errorf("failed to restore variant %d: %w", r.VariantID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrVariantNotFound, r.VariantID)
	}
	return nil
}

func (l *PostgresLedger) Commit(_ context.Context, _ Reservation) error {
	return nil
}
