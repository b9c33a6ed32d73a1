// Package duplicates реализует HTTP-обработчик поиска возможных
// дубликатов подписок: один продавец, одинаковая сумма и валюта.
package duplicates

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-radar/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-radar/internal/http/response"
	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// Service описывает интерфейс поиска дубликатов подписок.
type Service interface {
	Duplicates(ctx context.Context, userUID uuid.UUID) ([]models.DuplicateGroup, error)
}

// Handler обрабатывает запросы поиска дубликатов подписок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Дубликаты подписок
// @Description Возвращает группы активных подписок с одинаковым продавцом, суммой и валютой.
// @Tags Subscriptions
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Группы возможных дубликатов"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /subscriptions/duplicates [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.duplicates"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFromContext(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	groups, err := h.service.Duplicates(r.Context(), userUID)
	if err != nil {
		log.Error("failed to find duplicate subscriptions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to find duplicate subscriptions"))
		return
	}
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}

	log.Info("duplicate groups returned", "count", len(groups))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"count":      len(groups),
		"duplicates": groups,
	}))
}
