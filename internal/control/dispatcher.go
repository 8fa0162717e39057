// Package control — единая точка управления фичами: запуск и остановка
// воркеров, статус и разовые действия (сбор ленты, синхронизация).
//
// Через Dispatcher работают и HTTP-маршруты, и потребитель команд RabbitMQ,
// поэтому одна и та же команда ведёт себя одинаково независимо от источника.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/worker"
)

// Action — действие над фичей.
type Action string

// Действия.
const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionStatus  Action = "status"
	ActionCollect Action = "collect"
	ActionSync    Action = "sync"
	ActionFetch   Action = "fetch"
)

// ErrUnknownAction — у фичи нет такого действия.
var ErrUnknownAction = errors.New("unknown action")

// Command — команда управления. Формат сообщения control.commands.
type Command struct {
	Feature string            `json:"feature"`
	Action  Action            `json:"action"`
	Args    map[string]string `json:"args,omitempty"`
}

// ActionFunc — разовое действие фичи с готовым access token.
type ActionFunc func(ctx context.Context, token string, args map[string]string) (any, error)

// Config — конфигурация Dispatcher.
type Config struct {
	Registry *worker.Registry

	// Auth — источник токена; без него воркеры и действия не запускаются.
	Auth worker.Authenticator

	Logger *slog.Logger
}

// Dispatcher маршрутизирует команды к воркерам и действиям фич.
type Dispatcher struct {
	registry *worker.Registry
	auth     worker.Authenticator
	logger   *slog.Logger

	mu      sync.RWMutex
	actions map[string]map[Action]ActionFunc
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = worker.NewRegistry()
	}
	return &Dispatcher{
		registry: registry,
		auth:     cfg.Auth,
		logger:   logger,
		actions:  make(map[string]map[Action]ActionFunc),
	}
}

// Handle регистрирует разовое действие фичи.
func (d *Dispatcher) Handle(feature string, action Action, fn ActionFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.actions[feature] == nil {
		d.actions[feature] = make(map[Action]ActionFunc)
	}
	d.actions[feature][action] = fn
}

// Registry возвращает реестр воркеров.
func (d *Dispatcher) Registry() *worker.Registry {
	return d.registry
}

// Start запускает воркер фичи с параметрами params.
func (d *Dispatcher) Start(ctx context.Context, feature string, params map[string]string) error {
	c, err := d.registry.Get(feature)
	if err != nil {
		return err
	}
	if d.auth == nil {
		return worker.ErrNoToken
	}
	if err := d.auth.EnsureAuthenticated(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	return c.Start(ctx, worker.StartOptions{Auth: d.auth, Params: params})
}

// Stop останавливает воркер фичи.
func (d *Dispatcher) Stop(feature string) (worker.StopResult, error) {
	c, err := d.registry.Get(feature)
	if err != nil {
		return worker.StopResult{}, err
	}
	return c.Stop()
}

// Status возвращает статус воркера фичи.
func (d *Dispatcher) Status(ctx context.Context, feature string) (worker.Status, error) {
	c, err := d.registry.Get(feature)
	if err != nil {
		return worker.Status{}, err
	}
	return c.Status(ctx), nil
}

// StatusAll возвращает статусы всех воркеров.
func (d *Dispatcher) StatusAll(ctx context.Context) []worker.Status {
	return d.registry.StatusAll(ctx)
}

// Run выполняет разовое действие фичи. Просроченный токен обновляется
// и вызов повторяется один раз.
func (d *Dispatcher) Run(ctx context.Context, feature string, action Action, args map[string]string) (any, error) {
	d.mu.RLock()
	fn, ok := d.actions[feature][action]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownAction, feature, action)
	}
	if d.auth == nil {
		return nil, worker.ErrNoToken
	}

	token, err := d.auth.ValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	res, err := fn(ctx, token, args)
	if err == nil || !httpclient.IsExpiredToken(err) {
		return res, err
	}

	d.logger.Info("access token expired, refreshing", "feature", feature, "action", action)
	token, refreshErr := d.auth.Refresh(ctx)
	if refreshErr != nil {
		return nil, fmt.Errorf("%w (token refresh failed: %v)", err, refreshErr)
	}
	return fn(ctx, token, args)
}

// Execute выполняет команду из очереди управления.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) (any, error) {
	logger := d.logger.With("feature", cmd.Feature, "action", cmd.Action)

	switch cmd.Action {
	case ActionStart:
		if err := d.Start(ctx, cmd.Feature, cmd.Args); err != nil {
			return nil, err
		}
		logger.Info("worker started by command")
		return nil, nil

	case ActionStop:
		res, err := d.Stop(cmd.Feature)
		if err != nil {
			return nil, err
		}
		logger.Info("worker stopped by command", "stopped", res.Stopped)
		return res, nil

	case ActionStatus:
		return d.Status(ctx, cmd.Feature)

	default:
		res, err := d.Run(ctx, cmd.Feature, cmd.Action, cmd.Args)
		if err != nil {
			return nil, err
		}
		logger.Info("command executed")
		return res, nil
	}
}
