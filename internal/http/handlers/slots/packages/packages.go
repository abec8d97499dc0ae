// Package packages реализует HTTP-обработчик каталога цен слота.
package packages

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

type Service interface {
	ListBySlot(ctx context.Context, slotID int) ([]*models.PricingPackage, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Пакеты слота
// @Description Активные пакеты размещения слота по порядку отображения.
// @Tags Slots
// @Produce  json
// @Param slotID path int true "ID слота"
// @Success 200 {object} response.Response{data=[]models.PricingPackage}
// @Failure 422 {object} response.ErrorResponse "Неизвестный слот"
// @Router /slots/{slotID}/packages [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.slots.packages"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	slotID, err := strconv.Atoi(chi.URLParam(r, "slotID"))
	if err != nil {
		response.RenderError(w, r, models.ErrUnknownSlot)
		return
	}
	res, err := h.service.ListBySlot(r.Context(), slotID)
	if err != nil {
		log.Error("failed to list packages", slog.Int("slot_id", slotID), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}
