// Package paypalwebhook принимает вебхуки PayPal.
package paypalwebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/handlers/payment/stripewebhook"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/services/webhook"
)

type Service interface {
	HandlePayPal(ctx context.Context, r *http.Request, body []byte) (webhook.Outcome, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Вебхук PayPal
// @Description Подпись проверяется через verify-webhook-signature по заголовкам paypal-transmission-*.
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Success 200 {object} stripewebhook.Result
// @Failure 400 {object} response.ErrorResponse "Подпись не прошла проверку"
// @Failure 413 {object} response.ErrorResponse "Тело больше допустимого"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки, PayPal повторит доставку"
// @Router /webhooks/paypal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.paypalwebhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, stripewebhook.MaxBodyBytes+1))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("failed to read body"))
		return
	}
	if int64(len(body)) > stripewebhook.MaxBodyBytes {
		log.Warn("paypal webhook body too large", slog.Int64("limit", stripewebhook.MaxBodyBytes))
		render.Status(r, http.StatusRequestEntityTooLarge)
		render.JSON(w, r, response.Error("request body too large"))
		return
	}

	out, err := h.service.HandlePayPal(r.Context(), r, body)
	switch {
	case errors.Is(err, models.ErrSignatureInvalid):
		log.Warn("paypal webhook rejected", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid webhook signature"))
	case err != nil:
		log.Error("paypal webhook processing failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("webhook processing failed"))
	default:
		render.JSON(w, r, stripewebhook.Result{Received: true, Status: out.Status, Duplicate: out.Duplicate})
	}
}
