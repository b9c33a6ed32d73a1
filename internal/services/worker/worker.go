// Package services обрабатывает задания очереди пересчёта. Для одного
// пользователя одновременно выполняется не более одного пересчёта;
// разные пользователи обрабатываются параллельно.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// RecomputeRunner описывает движок пересчёта подписок.
type RecomputeRunner interface {
	Recompute(ctx context.Context, userUID uuid.UUID) error
}

// RecomputeWorker разбирает сообщения очереди и запускает пересчёт,
// сериализуя задания одного пользователя.
type RecomputeWorker struct {
	runner RecomputeRunner
	log    *slog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewRecomputeWorker создает новый экземпляр RecomputeWorker.
func NewRecomputeWorker(runner RecomputeRunner, log *slog.Logger) *RecomputeWorker {
	return &RecomputeWorker{
		runner: runner,
		log:    log,
		locks:  make(map[uuid.UUID]*userLock),
	}
}

// Handle обрабатывает одно сообщение очереди пересчёта. Ошибка пересчёта
// возвращается наружу: сообщение вернётся в очередь.
func (w *RecomputeWorker) Handle(ctx context.Context, body []byte) error {
	const op = "worker.Handle"

	var task models.RecomputeTask
	if err := json.Unmarshal(body, &task); err != nil {
		w.log.Error("failed to unmarshal recompute task", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if task.UserUID == uuid.Nil {
		w.log.Error("recompute task without user uid", "task_id", task.TaskID)
		return fmt.Errorf("%s: empty user uid", op)
	}

	unlock := w.lockUser(task.UserUID)
	defer unlock()

	log := w.log.With("task_id", task.TaskID, sl.UID(task.UserUID), "reason", task.Reason)
	log.Info("recompute task started")

	if err := w.runner.Recompute(ctx, task.UserUID); err != nil {
		log.Error("recompute task failed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("recompute task finished")
	return nil
}

// lockUser блокирует пересчёт пользователя и возвращает функцию
// освобождения. Записи без ссылок удаляются из карты.
func (w *RecomputeWorker) lockUser(userUID uuid.UUID) func() {
	w.mu.Lock()
	l, ok := w.locks[userUID]
	if !ok {
		l = &userLock{}
		w.locks[userUID] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, userUID)
		}
		w.mu.Unlock()
	}
}
