// Package sender собирает отправителя уведомлений: SMTP транспорт и
// потребителя очереди уведомлений.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-radar/internal/config"
	"github.com/magabrotheeeer/subscription-radar/internal/lib/smtp"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/subscription-radar/internal/services/sender"
)

// App представляет приложение отправителя уведомлений.
type App struct {
	senderService *senderservice.SenderService
	conn          *amqp.Connection
	ch            *amqp.Channel
	logger        *slog.Logger
}

// New создает новый экземпляр приложения отправителя.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetRadarQueues())
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.NewSenderService(transport, logger)

	return &App{
		senderService: senderService,
		conn:          conn,
		ch:            ch,
		logger:        logger,
	}, nil
}

// Run запускает потребителя очереди уведомлений и ждёт отмены контекста.
func (a *App) Run(ctx context.Context) error {
	consumer := rabbitmq.NewConsumer(a.ch, a.logger)
	err := consumer.Run(ctx, rabbitmq.QueueRenewalAlerts, a.senderService.SendRenewalAlert)
	if err != nil {
		a.logger.Error("failed to start alerts consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
