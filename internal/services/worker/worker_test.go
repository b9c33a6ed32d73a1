package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// countingRunner считает максимальную одновременность пересчётов по
// каждому пользователю.
type countingRunner struct {
	mu         sync.Mutex
	inFlight   map[uuid.UUID]int
	maxPerUser map[uuid.UUID]int
	total      atomic.Int32
	delay      time.Duration
	err        error
}

func newCountingRunner(delay time.Duration) *countingRunner {
	return &countingRunner{
		inFlight:   make(map[uuid.UUID]int),
		maxPerUser: make(map[uuid.UUID]int),
		delay:      delay,
	}
}

func (r *countingRunner) Recompute(_ context.Context, userUID uuid.UUID) error {
	r.mu.Lock()
	r.inFlight[userUID]++
	if r.inFlight[userUID] > r.maxPerUser[userUID] {
		r.maxPerUser[userUID] = r.inFlight[userUID]
	}
	r.mu.Unlock()

	time.Sleep(r.delay)
	r.total.Add(1)

	r.mu.Lock()
	r.inFlight[userUID]--
	r.mu.Unlock()
	return r.err
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func taskBody(t *testing.T, task models.RecomputeTask) []byte {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return body
}

func TestHandle_RunsRecompute(t *testing.T) {
	runner := newCountingRunner(0)
	worker := NewRecomputeWorker(runner, newNoopLogger())

	task := models.RecomputeTask{TaskID: uuid.New(), UserUID: uuid.New(), Reason: "manual"}
	err := worker.Handle(context.Background(), taskBody(t, task))
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.total.Load())
}

func TestHandle_BadJSON(t *testing.T) {
	runner := newCountingRunner(0)
	worker := NewRecomputeWorker(runner, newNoopLogger())

	err := worker.Handle(context.Background(), []byte("not-json"))
	require.Error(t, err)
	assert.Equal(t, int32(0), runner.total.Load())
}

func TestHandle_EmptyUserUID(t *testing.T) {
	runner := newCountingRunner(0)
	worker := NewRecomputeWorker(runner, newNoopLogger())

	task := models.RecomputeTask{TaskID: uuid.New(), Reason: "manual"}
	err := worker.Handle(context.Background(), taskBody(t, task))
	require.Error(t, err)
	assert.Equal(t, int32(0), runner.total.Load())
}

func TestHandle_RecomputeErrorSurfaces(t *testing.T) {
	runner := newCountingRunner(0)
	runner.err = errors.New("replace failed")
	worker := NewRecomputeWorker(runner, newNoopLogger())

	task := models.RecomputeTask{TaskID: uuid.New(), UserUID: uuid.New()}
	err := worker.Handle(context.Background(), taskBody(t, task))
	require.Error(t, err)
	assert.ErrorIs(t, err, runner.err)
}

func TestHandle_SerializesSameUser(t *testing.T) {
	runner := newCountingRunner(30 * time.Millisecond)
	worker := NewRecomputeWorker(runner, newNoopLogger())

	userUID := uuid.New()
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := models.RecomputeTask{TaskID: uuid.New(), UserUID: userUID}
			_ = worker.Handle(context.Background(), taskBody(t, task))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), runner.total.Load())
	assert.Equal(t, 1, runner.maxPerUser[userUID], "same user recomputes must not overlap")

	// Карта блокировок не растёт после завершения заданий.
	worker.mu.Lock()
	assert.Empty(t, worker.locks)
	worker.mu.Unlock()
}

func TestHandle_DifferentUsersRunInParallel(t *testing.T) {
	runner := newCountingRunner(50 * time.Millisecond)
	worker := NewRecomputeWorker(runner, newNoopLogger())

	var wg sync.WaitGroup
	start := time.Now()
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := models.RecomputeTask{TaskID: uuid.New(), UserUID: uuid.New()}
			_ = worker.Handle(context.Background(), taskBody(t, task))
		}()
	}
	wg.Wait()

	// Четыре пользователя по 50мс параллельно укладываются заметно
	// быстрее последовательных 200мс.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(4), runner.total.Load())
}
