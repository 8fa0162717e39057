package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeControl Exchange = "deviart.control"
	ExchangeEvents  Exchange = "deviart.events"
	ExchangeDLQ     Exchange = "deviart.dlq"
)

// Queues — имена очередей.
const (
	QueueControlCommands Queue = "control.commands"
	QueueEventsWorker    Queue = "events.worker"
	QueueDLQCommands     Queue = "dlq.commands"
)

// Routing keys.
const (
	RoutingKeyCommand     RoutingKey = "command"
	RoutingKeyWorker      RoutingKey = "worker"
	RoutingKeyDLQCommands RoutingKey = "commands"
)

// eventsTTL — события воркеров без потребителя не копятся бесконечно.
const eventsTTL = 24 * 60 * 60 * 1000

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeControl, ExchangeEvents, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Команда, упавшая дважды, уходит в DLQ, а не крутится в очереди
		{QueueControlCommands, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQCommands),
		}},
		{QueueEventsWorker, amqp.Table{"x-message-ttl": int32(eventsTTL)}},
		{QueueDLQCommands, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueControlCommands, RoutingKeyCommand, ExchangeControl},
		{QueueEventsWorker, RoutingKeyWorker, ExchangeEvents},
		{QueueDLQCommands, RoutingKeyDLQCommands, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Deviart RabbitMQ Topology:

    deviart.control (direct)
    └── control.commands [routing: command]
            Consumer: deviart-server (start/stop/collect/sync)
            DLQ: dlq.commands

    deviart.events (direct)
    └── events.worker [routing: worker]
            started / stopped / item, TTL 24h

    deviart.dlq (direct)
    └── dlq.commands [routing: commands]
            Manual processing
  `
}
