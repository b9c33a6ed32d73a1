// Package scheduler собирает планировщик уведомлений: хранилище и
// публикацию сообщений о близком продлении.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-radar/internal/config"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
	schedulerservice "github.com/magabrotheeeer/subscription-radar/internal/services/scheduler"
	"github.com/magabrotheeeer/subscription-radar/internal/storage/repository"
)

// App представляет приложение планировщика уведомлений.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *repository.Storage
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		if err := repository.CheckDatabaseReady(db); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(db); err != nil {
		closeStorage(db, logger)
		return nil, err
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

	publisher := &rabbitmq.ChannelPublisher{Ch: ch, Exchange: rabbitmq.ExchangeName}
	schedulerService := schedulerservice.NewSchedulerService(db, publisher, logger)

	return &App{
		schedulerService: schedulerService,
		db:               db,
		conn:             conn,
		ch:               ch,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
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
