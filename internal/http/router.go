package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nadhir24/bima-back-sub000/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Checkout      *CheckoutHandler
	Notifications *NotificationHandler
	Carts         *CartHandler
	Orders        *OrdersHandler

	Health         map[string]Pinger
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(d.Logger, d.Metrics))
	r.Use(middleware.Compress(5))

	r.Get("/health", healthHandler(d.Health))
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// the processor calls this one; it authenticates by signature, not identity
		r.Post("/payments/notifications", d.Notifications.Notify)

		r.Group(func(r chi.Router) {
			r.Use(IdentityMiddleware)

			r.Post("/checkout", d.Checkout.Checkout)
			r.Get("/orders/{order_id}", d.Orders.GetOrder)
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", d.Carts.GetCart)
				r.Post("/items", d.Carts.AddItem)
				r.Delete("/items/{variant_id}", d.Carts.RemoveItem)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront-http")
}

func healthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := map[string]string{"status": "ok"}
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks["status"] = "degraded"
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		respondJSON(w, status, checks)
	}
}
