// Package stripewebhook принимает вебхуки Stripe.
//
// Ответ 400 означает отказ в проверке подписи, 500 просит Stripe повторить доставку.
package stripewebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/services/webhook"
)

// MaxBodyBytes предел размера тела вебхука.
const MaxBodyBytes = int64(65536)

// Result ответ провайдеру.
type Result struct {
	Received  bool                 `json:"received"`
	Status    models.PaymentStatus `json:"status,omitempty"`
	Duplicate bool                 `json:"duplicate,omitempty"`
}

type Service interface {
	HandleStripe(ctx context.Context, payload []byte, signature string) (webhook.Outcome, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Вебхук Stripe
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string false "Подпись события"
// @Success 200 {object} Result
// @Failure 400 {object} response.ErrorResponse "Подпись не прошла проверку"
// @Failure 413 {object} response.ErrorResponse "Тело больше допустимого"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки, Stripe повторит доставку"
// @Router /webhooks/stripe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.stripewebhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("failed to read body"))
		return
	}
	if int64(len(payload)) > MaxBodyBytes {
		log.Warn("stripe webhook body too large", slog.Int64("limit", MaxBodyBytes))
		render.Status(r, http.StatusRequestEntityTooLarge)
		render.JSON(w, r, response.Error("request body too large"))
		return
	}

	out, err := h.service.HandleStripe(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, models.ErrSignatureInvalid) {
			log.Warn("stripe webhook rejected", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid webhook signature"))
			return
		}
		log.Error("stripe webhook processing failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("webhook processing failed"))
		return
	}
	render.JSON(w, r, Result{Received: true, Status: out.Status, Duplicate: out.Duplicate})
}
