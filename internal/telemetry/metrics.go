package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки элемента очереди.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRetry    = "retry"
	OutcomeSkipped  = "skipped"
	OutcomeCritical = "critical"
)

var (
	// WorkerItems — обработанные элементы по feature и исходу.
	WorkerItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_worker_items_total",
		Help: "Work items processed by feature workers, by outcome",
	}, []string{"feature", "outcome"})

	// WorkerRunning — 1, если воркер feature запущен.
	WorkerRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deviart_worker_running",
		Help: "Whether the feature worker goroutine is alive",
	}, []string{"feature"})

	// WorkerStops — остановки воркера по причине.
	WorkerStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_worker_stops_total",
		Help: "Feature worker loop exits, by reason",
	}, []string{"feature", "reason"})

	// HTTPRetries — повторы внешних запросов по причине.
	HTTPRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_http_retries_total",
		Help: "External API request retries, by reason",
	}, []string{"reason"})

	// HTTPRequests — внешние запросы по методу и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_http_requests_total",
		Help: "External API requests issued, by method and status",
	}, []string{"method", "status"})

	// TokenRefreshes — обновления OAuth-токена.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_token_refresh_total",
		Help: "OAuth token refresh attempts, by result",
	}, []string{"result"})

	// CollectedItems — элементы, добавленные сборщиками в очереди.
	CollectedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_collected_items_total",
		Help: "Items added to work queues by collectors",
	}, []string{"collector"})

	// SchedulerTriggers — срабатывания cron-заданий по результату.
	SchedulerTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_scheduler_triggers_total",
		Help: "Scheduled control commands, by job and result",
	}, []string{"job", "result"})

	// SchedulerLeader — 1, если экземпляр планировщика держит advisory lock.
	SchedulerLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deviart_scheduler_leader",
		Help: "Whether this scheduler instance holds the leader lock",
	})

	// APIRequests — запросы к API дашборда по маршруту и статусу.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deviart_api_requests_total",
		Help: "Dashboard API requests, by route pattern and status",
	}, []string{"route", "status"})

	// APIRequestDuration — длительность запросов к API дашборда.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deviart_api_request_duration_seconds",
		Help:    "Dashboard API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
