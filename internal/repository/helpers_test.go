package repository

import "github.com/nadhir24/bima-back-sub000/internal/inventory"

func reservationOf(variantID, qty int64) inventory.Reservation {
	return inventory.Reservation{VariantID: variantID, Quantity: qty}
}
