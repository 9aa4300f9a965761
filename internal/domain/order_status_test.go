package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusSettled, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusExpired, true},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusSettled, OrderStatusFailed, false},
		{OrderStatusFailed, OrderStatusSettled, false},
		{OrderStatusExpired, OrderStatusSettled, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_ReleasesStock(t *testing.T) {
	assert.True(t, OrderStatusFailed.ReleasesStock())
	assert.True(t, OrderStatusExpired.ReleasesStock())
	assert.False(t, OrderStatusSettled.ReleasesStock())
	assert.False(t, OrderStatusPending.ReleasesStock())
}

func TestIdentity_Validate(t *testing.T) {
	assert.NoError(t, UserIdentity("42").Validate())
	assert.NoError(t, GuestIdentity("g-1").Validate())
	assert.ErrorIs(t, Identity{}.Validate(), ErrInvalidIdentity)
	assert.ErrorIs(t, Identity{UserID: "1", GuestSessionID: "g"}.Validate(), ErrInvalidIdentity)
}

func TestIdentity_Key(t *testing.T) {
	assert.Equal(t, "user:42", UserIdentity("42").Key())
	assert.Equal(t, "guest:g-1", GuestIdentity("g-1").Key())
}

func TestSumLines(t *testing.T) {
	lines := []OrderLine{
		{VariantID: 1, UnitPrice: 50000, Quantity: 1},
		{VariantID: 2, UnitPrice: 30000, Quantity: 2},
	}
	assert.Equal(t, int64(110000), SumLines(lines))
	assert.Equal(t, int64(0), SumLines(nil))
}
