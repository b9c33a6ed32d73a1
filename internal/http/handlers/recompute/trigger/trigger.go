// Package trigger реализует HTTP-обработчик ручного запуска пересчёта:
// задание ставится в очередь, сам пересчёт выполняет воркер.
package trigger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/subscription-radar/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-radar/internal/http/response"
	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
)

var tasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "radar_recompute_tasks_enqueued_total",
	Help: "Number of recompute tasks enqueued via the API.",
}, []string{"reason"})

// Request — необязательное тело запроса пересчёта.
type Request struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,oneof=manual sync schedule"`
}

// Publisher публикует задание пересчёта в очередь.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Handler обрабатывает запросы ручного запуска пересчёта.
type Handler struct {
	log       *slog.Logger
	publisher Publisher
	validate  *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, publisher Publisher) *Handler {
	return &Handler{
		log:       log,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Запуск пересчёта подписок
// @Description Ставит задание пересчёта подписок пользователя в очередь и возвращает идентификатор задания.
// @Tags Recompute
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request false "Причина пересчёта"
// @Success 200 {object} map[string]any "Задание поставлено в очередь"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Не удалось поставить задание"
// @Router /recompute [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.recompute.trigger"

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

	// Тело запроса необязательно: пустое тело равно reason=manual.
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	task := models.RecomputeTask{
		TaskID:  uuid.New(),
		UserUID: userUID,
		Reason:  req.Reason,
	}
	if err := h.publisher.Publish(rabbitmq.RoutingKeyRecompute, task); err != nil {
		log.Error("failed to enqueue recompute task", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to enqueue recompute task"))
		return
	}
	tasksEnqueued.WithLabelValues(req.Reason).Inc()

	log.Info("recompute task enqueued", "task_id", task.TaskID, "reason", req.Reason)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"queued":  true,
		"task_id": task.TaskID,
	}))
}
