package domain

import "time"

type Cart struct {
	ID          string     `bson:"_id,omitempty" json:"-"`
	IdentityKey string     `bson:"identity_key" json:"identity_key"`
	Lines       []CartLine `bson:"lines" json:"lines"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartLine struct {
	VariantID int64     `bson:"variant_id" json:"variant_id"`
	Quantity  int64     `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}
