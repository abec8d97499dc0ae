// Package checkout реализует HTTP-обработчик оформления покупки слота.
//
// Ответ повторяет форму, которую ждёт клиент: {url}, {url, free} или {needsConfiguration}.
package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	checkoutservice "github.com/junaidookay/mu-online-hub/internal/services/checkout"
)

// Request тело запроса оформления.
type Request struct {
	PackageID  string `json:"packageId" validate:"required"`
	SlotID     *int   `json:"slotId,omitempty"`
	DraftID    string `json:"draftId,omitempty"`
	DraftType  string `json:"draftType,omitempty"`
	Provider   string `json:"provider,omitempty" validate:"omitempty,oneof=stripe paypal"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

type Service interface {
	Start(ctx context.Context, req checkoutservice.Request) (checkoutservice.Result, error)
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
// @Summary Оформить покупку слота
// @Description Создает сессию оплаты у провайдера. Бесплатный пакет не требует оплаты,
// @Description ненастроенный провайдер возвращает needsConfiguration.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Пакет, черновик и адреса возврата"
// @Success 200 {object} checkoutservice.Result
// @Failure 409 {object} response.CapacityResponse "Слот заполнен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Провайдер недоступен"
// @Security BearerAuth
// @Router /checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checkout"
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

	res, err := h.service.Start(r.Context(), checkoutservice.Request{
		UserID:     userID,
		PackageID:  req.PackageID,
		SlotID:     req.SlotID,
		DraftID:    req.DraftID,
		DraftType:  req.DraftType,
		Provider:   models.Provider(req.Provider),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		log.Warn("checkout failed", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}
