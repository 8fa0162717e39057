package worker

import (
	"context"
	"math/rand/v2"
	"time"
)

// Feature — логика одной фичи поверх общего цикла Worker.
//
// T — элемент работы фичи. Все методы, кроме Validate, вызываются
// только из горутины воркера.
type Feature[T any] interface {
	// Name — имя фичи: comments, fave, broadcast, stats.
	Name() string

	// Validate проверяет предусловия запуска и запоминает параметры запуска.
	// Невыполненное предусловие оборачивает ErrPrecondition.
	Validate(ctx context.Context, opts StartOptions) error

	// Claim возвращает следующий элемент или nil, если очередь пуста.
	Claim(ctx context.Context) (*T, error)

	// Key — естественный ключ элемента для логов и событий.
	Key(item *T) string

	// Attempts — число уже сделанных попыток.
	Attempts(item *T) int

	// Prepare готовит вызов: выбирает шаблон, проверяет цель.
	// ErrNoTemplates останавливает цикл, ErrSkipItem пропускает элемент.
	Prepare(ctx context.Context, token string, item *T) error

	// Execute выполняет вызов внешнего API.
	Execute(ctx context.Context, token string, item *T) error

	// Succeeded фиксирует успех: финальный статус и журнал.
	Succeeded(ctx context.Context, item *T) error

	// Failed фиксирует ошибку: permanent — финальный failed, иначе bump попытки.
	Failed(ctx context.Context, item *T, cause error, permanent bool) error
}

// Primer — фича, которой нужно заполнить очередь перед циклом
// (например, загрузить галерею). Вызывается в горутине воркера.
type Primer interface {
	Prime(ctx context.Context, token string) error
}

// Halter — фича со своим условием остановки по ошибке элемента.
type Halter interface {
	Halt(err error) bool
}

// StatusReporter добавляет фиче-специфичные поля в Status.
type StatusReporter interface {
	ReportStatus(ctx context.Context) map[string]any
}

// Authenticator — коллаборатор аутентификации.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) error
	ValidToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Pacer подсказывает паузу перед следующим запросом.
type Pacer interface {
	RecommendedDelay() time.Duration
}

// StartOptions — параметры запуска.
type StartOptions struct {
	// Token — access token; пустой берётся у Auth.
	Token string

	// Auth — коллаборатор для обновления токена при 401 (опционально).
	Auth Authenticator

	// Params — параметры фичи (template_id, username, ...).
	Params map[string]string
}

// Range — интервал случайной паузы.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Random возвращает равномерно распределённую паузу из [Min, Max].
func (r Range) Random() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int64N(int64(r.Max-r.Min)+1))
}
