package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
)

// maxConcurrentHandlers ограничивает число одновременно обрабатываемых
// сообщений одного потребителя.
const maxConcurrentHandlers = 10

// Consumer потребляет сообщения очереди и передаёт их обработчику.
// Ошибка обработчика возвращает сообщение в очередь (Nack с requeue).
type Consumer struct {
	ch  *amqp.Channel
	log *slog.Logger
}

// NewConsumer создает новый экземпляр Consumer.
func NewConsumer(ch *amqp.Channel, log *slog.Logger) *Consumer {
	return &Consumer{ch: ch, log: log}
}

// Run подписывается на очередь и запускает цикл доставки в отдельной
// горутине. Возвращается сразу после подписки; цикл живёт до отмены
// контекста или закрытия канала.
func (c *Consumer) Run(ctx context.Context, queueName string, handler func([]byte) error) error {
	const op = "rabbitmq.Consumer.Run"

	deliveries, err := c.ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: consume %s: %w", op, queueName, err)
	}

	go c.loop(ctx, queueName, deliveries, handler)
	return nil
}

func (c *Consumer) loop(ctx context.Context, queueName string, deliveries <-chan amqp.Delivery, handler func([]byte) error) {
	sem := make(chan struct{}, maxConcurrentHandlers)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				c.log.Info("delivery channel closed", slog.String("queue", queueName))
				return
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				c.process(d, handler)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

// process вызывает обработчик и подтверждает или возвращает сообщение.
func (c *Consumer) process(d amqp.Delivery, handler func([]byte) error) {
	if err := handler(d.Body); err != nil {
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Error("failed to ack message", sl.Err(ackErr))
	}
}
