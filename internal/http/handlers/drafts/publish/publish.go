// Package publish реализует HTTP-обработчик публикации черновика без оплаты:
// в бесплатном слоте или по уже оплаченной покупке слота.
package publish

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

// Result ответ вызова публикации.
type Result struct {
	Success   bool       `json:"success"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type Service interface {
	Publish(ctx context.Context, kind models.Kind, draftID, userID string) (models.ActivationResult, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Опубликовать черновик
// @Description Публикует черновик в бесплатном слоте или по оплаченной покупке без привязанного черновика.
// @Tags Drafts
// @Produce  json
// @Param kind path string true "Тип объявления"
// @Param id path string true "ID черновика"
// @Success 200 {object} Result
// @Failure 402 {object} response.ErrorResponse "Нет оплаченной покупки слота"
// @Failure 403 {object} response.ErrorResponse "Черновик не принадлежит пользователю"
// @Failure 409 {object} response.CapacityResponse "Слот заполнен"
// @Security BearerAuth
// @Router /drafts/{kind}/{id}/publish [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.drafts.publish"
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

	kind, id := models.Kind(chi.URLParam(r, "kind")), chi.URLParam(r, "id")
	res, err := h.service.Publish(r.Context(), kind, id, userID)
	if err != nil {
		log.Warn("failed to publish draft", slog.String("id", id), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, Result{Success: true, ExpiresAt: res.ExpiresAt})
}
