// Package list реализует HTTP-обработчик списка черновиков и объявлений пользователя.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

// Service выборка объявлений пользователя.
type Service interface {
	ListForUser(ctx context.Context, userID string) ([]models.DraftSummary, error)
}

// Handler обработчик GET /drafts.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список черновиков
// @Description Все объявления пользователя из пяти таблиц, новые первыми, с вычисленным статусом.
// @Tags Drafts
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.DraftSummary}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /drafts [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.drafts.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	items, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		log.Error("failed to list drafts", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(items))
}
