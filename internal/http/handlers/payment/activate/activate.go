// Package activate реализует прямой вызов активации после возврата клиента с оплаты.
package activate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/services/activation"
)

// Request тело запроса. Нужна ровно одна ссылка на платёж.
type Request struct {
	StripeSessionID string `json:"stripeSessionId,omitempty"`
	PayPalOrderID   string `json:"paypalOrderId,omitempty"`
	DraftID         string `json:"draftId" validate:"required"`
	DraftType       string `json:"draftType" validate:"required"`
	SlotID          int    `json:"slotId" validate:"required"`
	DurationDays    int    `json:"durationDays" validate:"required,gt=0"`
}

// Result ответ активации.
type Result struct {
	Success   bool       `json:"success"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type Service interface {
	ActivateDirect(ctx context.Context, req activation.DirectRequest) (models.ActivationResult, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Активировать черновик
// @Description Активирует черновик по ссылке на платёж. Повторный вызов с той же ссылкой
// @Description возвращает прежний срок размещения.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Ссылка на платёж и черновик"
// @Success 200 {object} Result
// @Failure 402 {object} response.ErrorResponse "Провайдер сообщил, что оплата не прошла"
// @Failure 403 {object} response.ErrorResponse "Черновик не принадлежит пользователю"
// @Failure 409 {object} response.CapacityResponse "Слот заполнен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Security BearerAuth
// @Router /activations [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.activate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	kind, err := models.ParseKind(req.DraftType)
	if err != nil {
		response.RenderError(w, r, err)
		return
	}

	res, err := h.service.ActivateDirect(r.Context(), activation.DirectRequest{
		UserID:          userID,
		StripeSessionID: req.StripeSessionID,
		PayPalOrderID:   req.PayPalOrderID,
		DraftID:         req.DraftID,
		Kind:            kind,
		SlotID:          req.SlotID,
		DurationDays:    req.DurationDays,
	})
	if err != nil {
		log.Warn("activation failed", slog.String("draft_id", req.DraftID), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, Result{Success: true, ExpiresAt: res.ExpiresAt})
}
