package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/reconciler"
	"github.com/rs/zerolog"
)

// HeaderSignature carries the notification signature when the processor
// sends it out of band; otherwise signature_key in the body is used.
const HeaderSignature = "X-Callback-Signature"

type NotificationReconciler interface {
	HandleNotification(ctx context.Context, raw []byte, signature string) (reconciler.Result, error)
}

type NotificationHandler struct {
	reconciler NotificationReconciler
	maxBody    int64
	logger     zerolog.Logger
}

func NewNotificationHandler(rec NotificationReconciler, maxBody int64, log zerolog.Logger) *NotificationHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &NotificationHandler{
		reconciler: rec,
		maxBody:    maxBody,
		logger:     log,
	}
}

// POST /api/v1/payments/notifications
// Anything but 200 makes the processor redeliver, so only infrastructure
// failures answer 500.
func (h *NotificationHandler) Notify(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return
	}
	if int64(len(raw)) > h.maxBody {
		respondError(w, http.StatusRequestEntityTooLarge, "invalid_request", "body too large")
		return
	}

	_, err = h.reconciler.HandleNotification(r.Context(), raw, r.Header.Get(HeaderSignature))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, reconciler.ErrInvalidSignature):
		respondError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
	case errors.Is(err, payment.ErrMalformedNotification):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error().Err(err).Msg("notification handling failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
