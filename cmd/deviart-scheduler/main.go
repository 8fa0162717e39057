// Deviart Scheduler — запускает сборщики и синхронизацию по cron.
//
// Scheduler:
//   - Раз в минуту сверяет cron-расписания из scheduler.* конфигурации
//   - Публикует команды collect/sync в deviart.control
//   - Работает как лидер: pg_try_advisory_lock на выделенном соединении
//
// Можно запускать несколько реплик — команды публикует только лидер.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Deviart/internal/config"
	"github.com/shaiso/Deviart/internal/mq"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/scheduler"
	"github.com/shaiso/Deviart/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("deviart-scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := telemetry.SetupLogger("deviart-scheduler")
	logger.Info("starting deviart-scheduler")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool: только advisory lock, двух соединений достаточно
	pool, err := repo.NewPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	// Без брокера планировщику некуда публиковать команды
	conn, err := mq.Dial(ctx, cfg.MQ.URL, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Jobs:      scheduler.JobsFromConfig(cfg.Scheduler),
		Publisher: mq.NewPublisher(conn, logger),
		Locker:    scheduler.NewPGLock(pool, scheduler.LockKey),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// HTTP mux: /healthz + /metrics + /schedule
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			http.Error(w, "broker disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /schedule", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"leader":  sched.IsLeader(),
			"entries": sched.Entries(),
		})
	})

	server := &http.Server{
		Addr:              cfg.SchedulerAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http error", "error", err)
			cancel()
		}
	}()

	// Run блокируется до отмены ctx и отпускает блокировку при выходе
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("deviart-scheduler stopped")
	return nil
}
