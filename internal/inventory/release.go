package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
)

// ReleaseAll gives every reservation back through ledger. A variant that no
// longer exists cannot take stock back; it is reported to onMissing and skipped.
func ReleaseAll(ctx context.Context, ledger Ledger, reservations []Reservation, onMissing func(Reservation)) error {
	for _, r := range reservations {
		err := ledger.Release(ctx, r)
		if errors.Is(err, ErrVariantNotFound) {
			if onMissing != nil {
				onMissing(r)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to release variant %d: %w", r.VariantID, err)
		}
	}
	return nil
}

// ReservationsFor rebuilds the tokens held by an order from its lines.
func ReservationsFor(order *domain.Order) []Reservation {
	out := make([]Reservation, len(order.Lines))
	for i, l := range order.Lines {
		out[i] = Reservation{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Currency:  order.Currency,
		}
	}
	return out
}
