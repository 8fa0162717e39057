// Deviart Server — дашборд и фоновые воркеры.
//
// Server:
//   - Обслуживает HTTP API дашборда и статические страницы
//   - Держит воркеры фич: comments, fave, broadcast, stats
//   - Принимает команды управления из RabbitMQ (если mq.enabled)
//   - Публикует события воркеров в deviart.events
//
// Воркер каждой фичи работает со своим пулом соединений PostgreSQL.
// HTTP-обработчики и команды используют отдельные экземпляры сервисов
// на общем пуле и соединений воркеров не получают.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Deviart/internal/api"
	"github.com/shaiso/Deviart/internal/config"
	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/mq"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/telemetry"
	"github.com/shaiso/Deviart/internal/worker"
)

var startTime = time.Now()

func main() {
	if err := run(); err != nil {
		slog.Error("deviart-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := telemetry.SetupLogger("deviart-server")
	logger.Info("starting deviart-server")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool для HTTP-обработчиков
	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := repo.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// RabbitMQ (опционально)
	var (
		mqConn    *mq.Connection
		publisher *mq.Publisher
	)
	if cfg.MQ.Enabled {
		mqConn, publisher = connectMQ(ctx, cfg.MQ.URL, logger)
		if mqConn != nil {
			defer mqConn.Close()
		}
	}

	var events worker.EventSink
	if publisher != nil {
		events = publisher
	}

	// Внешнее API, аутентификация, воркеры
	app, err := newApp(ctx, cfg, pool, dedicatedPools(cfg), events, logger)
	if err != nil {
		return err
	}
	defer app.close()

	dispatcher := control.New(control.Config{
		Registry: app.registry,
		Auth:     app.auth,
		Logger:   logger,
	})
	app.registerActions(dispatcher)

	// Команды управления из очереди
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	var consumerDone <-chan struct{}
	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:   mq.QueueControlCommands,
			Handler: mq.CommandHandler(dispatcher, logger),
		})
		consumerDone = startConsumer(consumerCtx, consumer, logger)
	}

	handler := api.NewHandler(api.Config{
		Control: dispatcher,
		Queues: map[string]api.QueueAdmin{
			"comments":  api.CommentQueue(repo.NewCommentQueueRepo(pool)),
			"fave":      api.FeedQueue(repo.NewFeedQueueRepo(pool)),
			"broadcast": api.ProfileQueue(repo.NewProfileQueueRepo(pool)),
		},
		CommentTemplates: repo.NewCommentTemplateRepo(pool),
		ProfileTemplates: repo.NewProfileTemplateRepo(pool),
		CommentLogs:      repo.NewCommentLogRepo(pool),
		ProfileLogs:      repo.NewProfileLogRepo(pool),
		Broadcaster:      app.broadcastAdmin,
		Auth:             app.auth,
		StaticDir:        cfg.Server.StaticDir,
		Logger:           logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr: cfg.ServerAddr(),
		Handler: api.Wrap(mux, cfg.Server.CORSOrigins,
			cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	// Сначала перестаём принимать команды, затем останавливаем воркеры
	stopConsumer()
	if consumerDone != nil {
		<-consumerDone
	}
	app.registry.StopAll(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}

// connectMQ подключается к RabbitMQ и объявляет топологию. Если брокер
// недоступен, сервер работает без него: только HTTP-управление.
func connectMQ(ctx context.Context, url string, logger *slog.Logger) (*mq.Connection, *mq.Publisher) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := mq.Dial(dialCtx, url, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running without control queue", "error", err)
		return nil, nil
	}
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	return conn, mq.NewPublisher(conn, logger)
}
