package domain

import "time"

// Variant is a purchasable SKU. Price is in minor units of Currency.
type Variant struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Currency  string    `json:"currency"`
	Quantity  int64     `json:"quantity"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}
