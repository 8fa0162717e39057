package domain

// QueueStatus — статус элемента очереди.
//
// Жизненный цикл:
//
//	pending → commented | faved | completed
//	        ↘ failed (reset-failed может вернуть в pending)
//
// processing допускается схемой, но воркер его не выставляет:
// единственный воркер на фичу гарантирует, что элемент не возьмут дважды.
type QueueStatus string

const (
	// StatusPending — элемент ждёт обработки.
	StatusPending QueueStatus = "pending"

	// StatusProcessing — элемент взят в работу.
	StatusProcessing QueueStatus = "processing"

	// StatusCommented — комментарий опубликован.
	StatusCommented QueueStatus = "commented"

	// StatusFaved — работа добавлена в избранное.
	StatusFaved QueueStatus = "faved"

	// StatusCompleted — сообщение в профиль отправлено.
	StatusCompleted QueueStatus = "completed"

	// StatusFailed — обработка завершилась ошибкой.
	StatusFailed QueueStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s QueueStatus) IsTerminal() bool {
	switch s {
	case StatusCommented, StatusFaved, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseQueueStatus парсит строку в QueueStatus. Пустая строка и неизвестные
// значения дают ok=false.
func ParseQueueStatus(s string) (QueueStatus, bool) {
	switch QueueStatus(s) {
	case StatusPending, StatusProcessing, StatusCommented, StatusFaved, StatusCompleted, StatusFailed:
		return QueueStatus(s), true
	default:
		return "", false
	}
}

// LogStatus — статус записи журнала отправок.
type LogStatus string

const (
	LogSent    LogStatus = "sent"
	LogFailed  LogStatus = "failed"
	LogDeleted LogStatus = "deleted"
)
