package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/service"
	"github.com/rs/zerolog"
)

type OrderReader interface {
	GetOrder(ctx context.Context, identity domain.Identity, orderID string) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
	logger  zerolog.Logger
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration, log zerolog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		logger:  log,
	}
}

type OrderLineDTO struct {
	VariantID int64  `json:"variant_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

type OrderResponseDTO struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Total         int64          `json:"total"`
	Currency      string         `json:"currency"`
	Flagged       bool           `json:"flagged,omitempty"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	RedirectURL   string         `json:"redirect_url,omitempty"`
	Lines         []OrderLineDTO `json:"lines"`
	CreatedAt     string         `json:"created_at"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO{
			VariantID: l.VariantID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	dto := OrderResponseDTO{
		ID:        o.ID,
		Status:    o.Status.String(),
		Total:     o.Total,
		Currency:  o.Currency,
		Flagged:   o.Flagged,
		Lines:     lines,
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.Payment != nil {
		dto.PaymentStatus = o.Payment.Status
		if o.Status == domain.OrderStatusPending {
			dto.RedirectURL = o.Payment.RedirectURL
		}
	}
	return dto
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	order, err := h.orders.GetOrder(ctx, identity, orderID)
	if errors.Is(err, service.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("order_id", orderID).Msg("order read failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}
