package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// ChannelPublisher публикует сообщения в обменник через открытый канал.
// Реализует интерфейсы публикации сервисов scheduler и recompute-триггера.
type ChannelPublisher struct {
	Ch       *amqp.Channel
	Exchange string
}

// Publish отправляет сообщение с заданным ключом маршрутизации.
func (p *ChannelPublisher) Publish(routingKey string, message any) error {
	return PublishMessage(p.Ch, p.Exchange, routingKey, message)
}

// PublishMessage публикует сообщение в RabbitMQ в формате JSON.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
