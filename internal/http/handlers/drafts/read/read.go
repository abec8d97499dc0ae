// Package read реализует HTTP-обработчик чтения одного черновика.
package read

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

type Service interface {
	Get(ctx context.Context, kind models.Kind, id, userID string) (*models.DraftSummary, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Получить черновик
// @Tags Drafts
// @Produce  json
// @Param kind path string true "Тип объявления"
// @Param id path string true "ID черновика"
// @Success 200 {object} response.Response{data=models.DraftSummary}
// @Failure 403 {object} response.ErrorResponse "Черновик не принадлежит пользователю"
// @Security BearerAuth
// @Router /drafts/{kind}/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.drafts.read"
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
	res, err := h.service.Get(r.Context(), kind, id, userID)
	if err != nil {
		log.Warn("failed to read draft", slog.String("id", id), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}
