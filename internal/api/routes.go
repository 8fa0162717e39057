package api

import (
	"net/http"
	"os"
	"time"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(h.logger),
		Logging(),
	)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	// Workers
	handle("GET /api/workers", h.WorkersStatus)
	handle("POST /api/{feature}/worker/start", h.StartWorker)
	handle("POST /api/{feature}/worker/stop", h.StopWorker)
	handle("GET /api/{feature}/worker/status", h.WorkerStatus)

	// Queues
	handle("GET /api/{feature}/queue", h.ListQueue)
	handle("GET /api/{feature}/queue/stats", h.QueueStats)
	handle("POST /api/{feature}/queue/clear", h.ClearQueue)
	handle("POST /api/{feature}/queue/reset-failed", h.ResetFailed)
	handle("POST /api/{feature}/queue/remove", h.RemoveFromQueue)
	handle("POST /api/broadcast/queue/add", h.EnqueueBroadcast)
	handle("POST /api/broadcast/queue/retry-failed", h.RetryFailedBroadcast)

	// Collectors
	handle("POST /api/comments/collect", h.CollectComments)
	handle("POST /api/fave/collect", h.CollectFeed)
	handle("POST /api/broadcast/watchers/fetch", h.FetchWatchers)
	handle("POST /api/stats/sync", h.SyncStats)

	// Templates
	handle("GET /api/{feature}/templates", h.ListTemplates)
	handle("POST /api/{feature}/templates", h.CreateTemplate)
	handle("PUT /api/{feature}/templates/{id}", h.UpdateTemplate)
	handle("DELETE /api/{feature}/templates/{id}", h.DeleteTemplate)

	// Logs
	handle("GET /api/comments/logs", h.CommentLogs)
	handle("GET /api/comments/logs/stats", h.CommentLogStats)
	handle("GET /api/broadcast/logs", h.BroadcastLogs)
	handle("GET /api/broadcast/logs/stats", h.BroadcastLogStats)

	// Auth
	if h.auth != nil {
		handle("GET /auth/login", h.Login)
		handle("GET /auth/callback", h.Callback)
		handle("GET /api/auth/status", h.AuthStatus)
	}

	// Страницы дашборда
	if h.staticDir != "" {
		if info, err := os.Stat(h.staticDir); err == nil && info.IsDir() {
			mux.Handle("GET /", http.FileServer(http.Dir(h.staticDir)))
		} else {
			h.logger.Warn("static dir not found, dashboard pages disabled", "dir", h.staticDir)
		}
	}
}

// Wrap добавляет CORS и ограничение частоты поверх всего mux:
// preflight OPTIONS не совпадает ни с одним маршрутом.
func Wrap(next http.Handler, origins []string, requests int, window time.Duration) http.Handler {
	return Chain(
		CORS(origins),
		RateLimit(requests, window),
	)(next)
}
