package worker

import (
	"context"
	"time"
)

// Типы событий воркера.
const (
	EventStarted = "started"
	EventStopped = "stopped"
	EventItem    = "item"
)

// Event — событие жизненного цикла или обработки элемента.
type Event struct {
	Feature string    `json:"feature"`
	Type    string    `json:"event"`
	Key     string    `json:"key,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// EventSink получает события воркера. Ошибка доставки только логируется.
type EventSink interface {
	PublishWorkerEvent(ctx context.Context, e Event) error
}
