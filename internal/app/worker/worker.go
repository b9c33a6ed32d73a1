// Package worker собирает воркер пересчёта: хранилище, кеш и потребитель
// очереди заданий.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-radar/internal/cache"
	"github.com/magabrotheeeer/subscription-radar/internal/config"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
	"github.com/magabrotheeeer/subscription-radar/internal/services/recompute"
	workerservice "github.com/magabrotheeeer/subscription-radar/internal/services/worker"
	"github.com/magabrotheeeer/subscription-radar/internal/storage/repository"
)

// App представляет приложение воркера пересчёта.
type App struct {
	recomputeWorker *workerservice.RecomputeWorker
	db              *repository.Storage
	conn            *amqp.Connection
	ch              *amqp.Channel
	logger          *slog.Logger
}

// New создает новый экземпляр приложения воркера.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeStorage(db, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		closeStorage(db, logger)
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetRadarQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		closeStorage(db, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	recomputeService := recompute.New(db, cacheRedis, logger, recompute.DefaultConfig())
	recomputeWorker := workerservice.NewRecomputeWorker(recomputeService, logger)

	return &App{
		recomputeWorker: recomputeWorker,
		db:              db,
		conn:            conn,
		ch:              ch,
		logger:          logger,
	}, nil
}

// Run запускает потребителя очереди пересчёта и ждёт отмены контекста.
func (a *App) Run(ctx context.Context) error {
	handler := func(body []byte) error {
		return a.recomputeWorker.Handle(ctx, body)
	}
	consumer := rabbitmq.NewConsumer(a.ch, a.logger)
	if err := consumer.Run(ctx, rabbitmq.QueueRecomputeTasks, handler); err != nil {
		a.logger.Error("failed to start recompute consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down recompute worker")

	closeResources(a.ch, a.conn, a.logger)
	closeStorage(a.db, a.logger)
	return nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", slog.Any("err", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", slog.Any("err", err))
		}
	}
}

func closeStorage(db *repository.Storage, logger *slog.Logger) {
	if err := db.DB.Close(); err != nil {
		logger.Error("failed to close storage", slog.Any("err", err))
	}
}
