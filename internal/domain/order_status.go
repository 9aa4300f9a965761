package domain

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusSettled OrderStatus = "SETTLED"
	OrderStatusFailed  OrderStatus = "FAILED"
	OrderStatusExpired OrderStatus = "EXPIRED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusSettled || s == OrderStatusFailed || s == OrderStatusExpired
}

// ReleasesStock reports whether entering s gives the reserved stock back.
func (s OrderStatus) ReleasesStock() bool {
	return s == OrderStatusFailed || s == OrderStatusExpired
}

// CanTransitionTo allows only PENDING to move, and only into a terminal status.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && next.IsTerminal()
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
