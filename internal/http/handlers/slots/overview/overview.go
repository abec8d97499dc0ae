// Package overview реализует HTTP-обработчик витрины слотов: реестр, пакеты и занятость.
package overview

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/services/pricing"
)

type Service interface {
	Overview(ctx context.Context) ([]pricing.SlotOverview, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Слоты главной страницы
// @Description Все слоты с активными пакетами и текущей занятостью.
// @Tags Slots
// @Produce  json
// @Success 200 {object} response.Response{data=[]pricing.SlotOverview}
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /slots [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.slots.overview"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res, err := h.service.Overview(r.Context())
	if err != nil {
		log.Error("failed to build slots overview", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}
