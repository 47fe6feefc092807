package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// EventHandler applies one verified gateway event.
type EventHandler interface {
	Handle(ctx context.Context, ev stripe.Event) error
}

// StripeWebhookHandler verifies and forwards Stripe events.
type StripeWebhookHandler struct {
	Events  EventHandler
	Secret  string
	MaxBody int64
	Log     *zap.Logger
}

// Receive handles POST /v1/webhooks/stripe.  The raw body is needed for
// signature verification, so it is read before anything binds it.
// Unverifiable requests get 400; failures the gateway should retry get
// 500; everything else, including events that changed nothing, gets an
// empty 200.
func (h *StripeWebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.MaxBody+1))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if int64(len(body)) > h.MaxBody {
		h.Log.Warn("webhook payload too large", zap.Int("bytes", len(body)))
		return c.NoContent(http.StatusBadRequest)
	}

	ev, err := webhook.ConstructEventWithOptions(body, c.Request().Header.Get("Stripe-Signature"), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.Log.Warn("webhook signature rejected", zap.Error(err))
		return c.NoContent(http.StatusBadRequest)
	}

	if err := h.Events.Handle(c.Request().Context(), ev); err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusOK)
}
