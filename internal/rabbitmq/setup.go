package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// ExchangeName — общий direct-обменник сервиса.
const ExchangeName = "radar"

// Имена очередей и ключи маршрутизации.
const (
	QueueRecomputeTasks = "recompute.tasks"
	RoutingKeyRecompute = "recompute"

	QueueRenewalAlerts   = "notifications.alerts"
	RoutingKeyAlerts     = "alerts"
	SkipRabbitMQTestsEnv = "true"
)

// QueueConfig описывает очередь и её ключ маршрутизации в обменнике.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetRadarQueues возвращает полный набор очередей сервиса.
func GetRadarQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueRecomputeTasks, RoutingKey: RoutingKeyRecompute},
		{QueueName: QueueRenewalAlerts, RoutingKey: RoutingKeyAlerts},
	}
}

// SetupChannel открывает канал, объявляет обменник и привязывает очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}

		err = ch.QueueBind(
			q.QueueName,
			q.RoutingKey,
			ExchangeName,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
