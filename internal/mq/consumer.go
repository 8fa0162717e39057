package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/worker"
)

// ErrMalformed — сообщение не разбирается; повторная доставка бессмысленна.
var ErrMalformed = errors.New("malformed message")

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение будет nack).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенный конверт.
	Message Message

	// Redelivered — сообщение уже доставлялось.
	Redelivered bool
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start потребляет сообщения до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	return c.consume(ctx)
}

// consume — основной цикл потребления; переживает переподключения.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
		} else {
			c.logger.Info("consumer started")
			err = c.processDeliveries(ctx, deliveries)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "body", string(raw.Body))
		_ = raw.Nack(false, false)
		return
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message")

	err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	if err == nil {
		_ = raw.Ack(false)
		return
	}

	requeue := retryable(err, raw.Redelivered)
	logger.Error("handler failed", "error", err, "requeue", requeue)
	_ = raw.Nack(false, requeue)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// retryable — вернуть сообщение в очередь. Одна повторная доставка,
// дальше сообщение уходит в DLQ.
func retryable(err error, redelivered bool) bool {
	return !redelivered && !errors.Is(err, ErrMalformed)
}

// ParsePayload разбирает payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("%w: unmarshal payload: %v", ErrMalformed, err)
	}
	return result, nil
}

// CommandExecutor выполняет команды управления (control.Dispatcher).
type CommandExecutor interface {
	Execute(ctx context.Context, cmd control.Command) (any, error)
}

// CommandHandler возвращает обработчик очереди control.commands.
//
// Отказы, которые не исправит повтор (воркер уже запущен, предусловия,
// неизвестная фича), подтверждаются с предупреждением в логе.
func CommandHandler(exec CommandExecutor, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, d *Delivery) error {
		if d.Message.Type != MessageTypeCommand {
			return fmt.Errorf("%w: unexpected type %q", ErrMalformed, d.Message.Type)
		}

		cmd, err := ParsePayload[control.Command](&d.Message)
		if err != nil {
			return err
		}
		if cmd.Feature == "" || cmd.Action == "" {
			return fmt.Errorf("%w: feature and action are required", ErrMalformed)
		}

		_, err = exec.Execute(ctx, cmd)
		if err == nil {
			return nil
		}
		if rejected(err) {
			logger.Warn("command rejected",
				"feature", cmd.Feature,
				"action", cmd.Action,
				"reason", err,
			)
			return nil
		}
		return fmt.Errorf("%s %s: %w", cmd.Feature, cmd.Action, err)
	}
}

func rejected(err error) bool {
	for _, target := range []error{
		worker.ErrAlreadyRunning,
		worker.ErrNotRunning,
		worker.ErrPrecondition,
		worker.ErrUnknownFeature,
		worker.ErrNoToken,
		control.ErrUnknownAction,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
