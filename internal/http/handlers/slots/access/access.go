// Package access реализует HTTP-обработчик проверки доступа пользователя к слоту.
//
// С параметром wait=true обработчик ждёт, пока вебхук провайдера активирует покупку,
// и после ограниченного числа попыток отвечает статусом processing.
package access

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	accessservice "github.com/junaidookay/mu-online-hub/internal/services/access"
)

type Service interface {
	HasActivePurchase(ctx context.Context, userID string, slotID int) (accessservice.Result, error)
	WaitForActivation(ctx context.Context, userID string, slotID int) (accessservice.Result, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Доступ к слоту
// @Description Есть ли у пользователя активная оплаченная покупка слота.
// @Tags Slots
// @Produce  json
// @Param slotID path int true "ID слота"
// @Param wait query bool false "Ждать активации после возврата с оплаты"
// @Success 200 {object} accessservice.Result
// @Failure 422 {object} response.ErrorResponse "Неизвестный слот"
// @Security BearerAuth
// @Router /slots/{slotID}/access [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.slots.access"
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
	slotID, err := strconv.Atoi(chi.URLParam(r, "slotID"))
	if err != nil {
		response.RenderError(w, r, models.ErrUnknownSlot)
		return
	}

	check := h.service.HasActivePurchase
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		check = h.service.WaitForActivation
	}
	res, err := check(r.Context(), userID, slotID)
	if err != nil {
		log.Error("failed to check access", slog.Int("slot_id", slotID), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}
