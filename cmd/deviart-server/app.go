package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/auth"
	"github.com/shaiso/Deviart/internal/broadcast"
	"github.com/shaiso/Deviart/internal/comments"
	"github.com/shaiso/Deviart/internal/config"
	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/fave"
	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/stats"
	"github.com/shaiso/Deviart/internal/worker"
)

// app — собранные сервисы фич и их воркеры.
//
// Воркеры получают экземпляры сервисов на выделенных пулах. Поля ниже —
// экземпляры на общем пуле для HTTP-обработчиков и команд.
type app struct {
	registry *worker.Registry
	auth     *auth.Service

	collector      *comments.Collector
	feedCollector  *fave.Service
	broadcastAdmin *broadcast.Service
	statsSync      *stats.Service

	openPool    poolOpener
	workerPools map[string]*pgxpool.Pool
}

// poolOpener открывает выделенный пул соединений воркера.
type poolOpener func(ctx context.Context) (*pgxpool.Pool, error)

// dedicatedPools открывает пулы размера worker_max_conns.
func dedicatedPools(cfg *config.Config) poolOpener {
	return func(ctx context.Context) (*pgxpool.Pool, error) {
		return repo.NewPool(ctx, cfg.Database.URL, cfg.Database.WorkerMaxConns)
	}
}

// newApp собирает клиент внешнего API, аутентификацию и четыре воркера.
func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, openPool poolOpener, events worker.EventSink, logger *slog.Logger) (*app, error) {
	httpClient := httpclient.New(httpclient.Config{
		Timeout:           cfg.HTTP.Timeout,
		MaxRetries:        cfg.HTTP.MaxRetries,
		BaseDelay:         cfg.HTTP.BaseDelay,
		MaxBackoff:        cfg.HTTP.MaxBackoff,
		DefaultDelay:      cfg.HTTP.DefaultDelay,
		RetryableStatuses: cfg.HTTP.RetryableStatuses,
		DisableRetry:      !cfg.HTTP.EnableRetry,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Logger:            logger,
	})
	da := deviantart.New(httpClient, cfg.DeviantArt.APIBaseURL)

	a := &app{
		registry:    worker.NewRegistry(),
		openPool:    openPool,
		workerPools: make(map[string]*pgxpool.Pool),
	}

	a.auth = auth.New(auth.Config{
		OAuth:      auth.NewOAuthConfig(cfg.DeviantArt),
		Store:      repo.NewTokenRepo(pool),
		Validator:  da,
		HTTPClient: &http.Client{Timeout: cfg.HTTP.Timeout},
		Logger:     logger,
	})

	// Разовые действия работают в запросе, на общем пуле
	a.collector = comments.NewCollector(comments.CollectorConfig{
		API:    da,
		Queue:  repo.NewCommentQueueRepo(pool),
		Logs:   repo.NewCommentLogRepo(pool),
		State:  repo.NewStateRepo(pool),
		Logger: logger,
	})
	a.feedCollector = newFaveService(da, pool, logger)
	a.broadcastAdmin = newBroadcastService(da, pool, cfg, logger)
	a.statsSync = newStatsService(da, pool, cfg, logger)

	base := worker.Options{
		IdleDelay:              cfg.Worker.IdleDelay,
		StopTimeout:            cfg.Worker.StopTimeout,
		MaxConsecutiveFailures: cfg.Worker.MaxConsecutiveFailures,
	}
	broadcastDelay := worker.Range{Min: cfg.Worker.BroadcastMinDelay, Max: cfg.Worker.BroadcastMaxDelay}

	// comments
	commentsPool, err := a.workerPool(ctx, comments.FeatureName)
	if err != nil {
		a.close()
		return nil, err
	}
	poster := comments.NewPoster(comments.PosterConfig{
		API:       da,
		Queue:     repo.NewCommentQueueRepo(commentsPool),
		Logs:      repo.NewCommentLogRepo(commentsPool),
		Templates: repo.NewCommentTemplateRepo(commentsPool),
		Logger:    logger,
	})
	opts := base
	opts.BroadcastDelay = broadcastDelay
	opts.MaxAttempts = cfg.Worker.MaxAttempts
	a.registry.Register(worker.New(worker.Config[comments.Job]{
		Feature: poster,
		Pacer:   da,
		Options: opts,
		Events:  events,
		Logger:  logger,
	}))

	// fave
	favePool, err := a.workerPool(ctx, fave.FeatureName)
	if err != nil {
		a.close()
		return nil, err
	}
	opts = base
	opts.SuccessDelay = worker.Range{Min: cfg.Worker.FaveMinDelay, Max: cfg.Worker.FaveMaxDelay}
	opts.MaxAttempts = cfg.Worker.MaxAttempts
	a.registry.Register(worker.New(worker.Config[domain.FeedItem]{
		Feature: newFaveService(da, favePool, logger),
		Pacer:   da,
		Options: opts,
		Events:  events,
		Logger:  logger,
	}))

	// broadcast
	broadcastPool, err := a.workerPool(ctx, broadcast.FeatureName)
	if err != nil {
		a.close()
		return nil, err
	}
	opts = base
	opts.BroadcastDelay = broadcastDelay
	opts.MaxAttempts = broadcast.MaxAttempts
	opts.StopWhenDrained = true
	a.registry.Register(worker.New(worker.Config[broadcast.Job]{
		Feature: newBroadcastService(da, broadcastPool, cfg, logger),
		Pacer:   da,
		Options: opts,
		Events:  events,
		Logger:  logger,
	}))

	// stats
	statsPool, err := a.workerPool(ctx, stats.FeatureName)
	if err != nil {
		a.close()
		return nil, err
	}
	opts = base
	opts.MaxAttempts = stats.MaxAttempts
	opts.StopWhenDrained = true
	a.registry.Register(worker.New(worker.Config[stats.Batch]{
		Feature: newStatsService(da, statsPool, cfg, logger),
		Pacer:   da,
		Options: opts,
		Events:  events,
		Logger:  logger,
	}))

	logger.Info("workers registered", "features", a.registry.Names())
	return a, nil
}

// registerActions подключает разовые действия фич к Dispatcher.
func (a *app) registerActions(d *control.Dispatcher) {
	d.Handle(comments.FeatureName, control.ActionCollect, a.collector.CollectArgs)
	d.Handle(fave.FeatureName, control.ActionCollect, a.feedCollector.CollectArgs)
	d.Handle(broadcast.FeatureName, control.ActionFetch, a.broadcastAdmin.FetchArgs)
	d.Handle(stats.FeatureName, control.ActionSync, a.statsSync.SyncArgs)
}

func newFaveService(da *deviantart.Client, pool *pgxpool.Pool, logger *slog.Logger) *fave.Service {
	return fave.New(fave.Config{
		API:    da,
		Queue:  repo.NewFeedQueueRepo(pool),
		State:  repo.NewStateRepo(pool),
		Logger: logger,
	})
}

func newBroadcastService(da *deviantart.Client, pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) *broadcast.Service {
	return broadcast.New(broadcast.Config{
		API:       da,
		Queue:     repo.NewProfileQueueRepo(pool),
		Logs:      repo.NewProfileLogRepo(pool),
		Templates: repo.NewProfileTemplateRepo(pool),
		Watchers:  repo.NewWatcherRepo(pool),
		Username:  cfg.DeviantArt.Username,
		Logger:    logger,
	})
}

func newStatsService(da *deviantart.Client, pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) *stats.Service {
	return stats.New(stats.Config{
		API:      da,
		Store:    repo.NewStatsRepo(pool),
		Username: cfg.DeviantArt.Username,
		Logger:   logger,
	})
}

// workerPool открывает выделенный пул соединений для воркера фичи.
func (a *app) workerPool(ctx context.Context, feature string) (*pgxpool.Pool, error) {
	p, err := a.openPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s worker pool: %w", feature, err)
	}
	a.workerPools[feature] = p
	return p, nil
}

func (a *app) close() {
	for _, p := range a.workerPools {
		p.Close()
	}
}
