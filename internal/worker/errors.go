package worker

import (
	"errors"
	"fmt"
)

// Ошибки воркера.
var (
	// ErrAlreadyRunning — горутина фичи уже жива.
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrNotRunning — живой горутины нет.
	ErrNotRunning = errors.New("worker not running")

	// ErrPrecondition — предусловия запуска не выполнены (пустая очередь,
	// нет активных шаблонов, неизвестный шаблон).
	ErrPrecondition = errors.New("precondition failed")

	// ErrNoToken — нет access token и нет коллаборатора, чтобы его получить.
	ErrNoToken = errors.New("no access token")

	// ErrUnknownFeature — фича не зарегистрирована.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrNoTemplates — у фичи не осталось активных шаблонов; цикл останавливается.
	ErrNoTemplates = errors.New("no active templates")

	// ErrSkipItem — элемент пропущен без учёта как ошибки (например, работа удалена).
	ErrSkipItem = errors.New("item skipped")
)

// Preconditionf возвращает ошибку предусловия с описанием.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
