package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/logger"
	"github.com/nadhir24/bima-back-sub000/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	HeaderUserID       = "X-User-ID"
	HeaderGuestSession = "X-Guest-Session"
)

type ctxKey int

const identityKey ctxKey = iota

// IdentityMiddleware resolves the caller from headers set by the upstream
// gateway. An authenticated user wins over a guest session.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id domain.Identity
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			id = domain.UserIdentity(userID)
		} else if guest := r.Header.Get(HeaderGuestSession); guest != "" {
			id = domain.GuestIdentity(guest)
		}
		if id.Validate() != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

type StatusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *StatusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *StatusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// LoggerMiddleware logs and measures every request and turns a panic into a 500.
func LoggerMiddleware(base zerolog.Logger, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &StatusRecorder{ResponseWriter: w}
			start := time.Now()

			defer func() {
				rec := recover()
				if rec != nil {
					if recorder.status == 0 {
						respondError(recorder, http.StatusInternalServerError, "internal_error", "internal server error")
					}
					recorder.status = http.StatusInternalServerError
				}

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				took := time.Since(start)
				m.ObserveRequest(route, recorder.Status(), took)

				l := logger.Ctx(r.Context(), base)
				ev := l.Info()
				if rec != nil {
					ev = l.Error().Str("panic", fmt.Sprintf("%v", rec))
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("route", route).
					Int("status", recorder.Status()).
					Dur("duration", took).
					Msg("request completed")
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}
