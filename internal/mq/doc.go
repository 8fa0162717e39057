// Package mq — плоскость управления Deviart поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация команд и событий воркеров
//   - consumer.go   — потребление очереди и обработчик команд
//
// Типы сообщений:
//   - control.command — {feature, action, args}: start, stop, collect, sync, fetch
//   - worker.event    — {feature, event, key, outcome, error}: started, stopped, item
//
// Exchanges:
//   - deviart.control — команды от планировщика и CLI
//   - deviart.events  — события воркеров (Publisher реализует worker.EventSink)
//   - deviart.dlq     — команды, которые не удалось выполнить
package mq
