// Package rabbitmq содержит подключение к брокеру, объявление очередей,
// публикацию и потребление сообщений.
//
// Через брокер ходят два потока: задания на пересчёт подписок
// (recompute.tasks) и уведомления о продлениях (notifications.alerts).
package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Connect подключается к RabbitMQ с повторными попытками.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	var conn *amqp.Connection
	var err error

	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}
