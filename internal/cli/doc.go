// Package cli реализует инструмент командной строки Deviart.
//
// # Обзор
//
// CLI — клиентская утилита для API дашборда deviart-server.
// Работает через HTTP и не импортирует internal/api: типы ответов
// продублированы в client.go. Единственное исключение — команда send,
// которая публикует control.Command напрямую в RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Разбирает ответы {data}, {data, total},
// {success, message, data} и ошибки {success: false, error, code}
// в *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	statuses, err := client.ListWorkers()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
// deviart queue list comments --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - worker: list, start, stop, status
//   - queue: list, stats, clear, reset-failed, remove, add, retry-failed
//   - collect: comments, fave, watchers, stats
//   - template: list, create, update, delete
//   - log: list, stats
//   - auth: status
//   - send: публикация команды в control.commands
//
// Каждая группа создаётся фабричной функцией (NewWorkerCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
