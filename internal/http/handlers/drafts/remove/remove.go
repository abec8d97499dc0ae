// Package remove реализует HTTP-обработчик удаления черновика.
package remove

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
	Delete(ctx context.Context, kind models.Kind, id, userID string) error
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Удалить черновик
// @Tags Drafts
// @Produce  json
// @Param kind path string true "Тип объявления"
// @Param id path string true "ID черновика"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Черновик не принадлежит пользователю"
// @Security BearerAuth
// @Router /drafts/{kind}/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.drafts.remove"
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
	if err := h.service.Delete(r.Context(), kind, id, userID); err != nil {
		log.Warn("failed to delete draft", slog.String("id", id), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	log.Info("draft deleted", slog.String("id", id))
	render.JSON(w, r, response.OKWithData(map[string]string{"id": id}))
}
