// Package api — HTTP API дашборда.
//
// Структура:
//   - handler.go          — Handler и интерфейсы зависимостей
//   - routes.go           — регистрация маршрутов, CORS и rate limit поверх mux
//   - middleware.go       — recovery, request id, logging + метрики, CORS, rate limit
//   - response.go         — JSON-ответы и отображение ошибок в статусы
//   - dto.go              — тела запросов и ответов
//   - queues.go           — адаптеры репозиториев очередей к QueueAdmin
//   - worker_handler.go   — /api/{feature}/worker/start|stop|status
//   - queue_handler.go    — /api/{feature}/queue/...
//   - collect_handler.go  — сбор ленты, наблюдателей, синхронизация статистики
//   - template_handler.go — /api/{comments|broadcast}/templates
//   - log_handler.go      — журналы отправок
//   - auth_handler.go     — OAuth login/callback
//
// Управляющие действия отвечают {success, message}, ошибки —
// {success:false, error}, чтения — {data}.
package api
