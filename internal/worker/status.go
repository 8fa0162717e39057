package worker

import (
	"encoding/json"
	"maps"
	"time"
)

// State — состояние жизненного цикла воркера.
//
//	stopped → starting → running → stopping → stopped
//
// Горутина может завершиться сама (критическая ошибка, breaker, очередь
// исчерпана); следующий Status всё равно покажет stopped.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Причины остановки цикла.
const (
	ReasonRequested     = "requested"
	ReasonCritical      = "critical"
	ReasonBreaker       = "consecutive_failures"
	ReasonDrained       = "drained"
	ReasonHalted        = "halted"
	ReasonNoTemplates   = "no_templates"
	ReasonPrimeFailed   = "prime_failed"
	ReasonPersistFailed = "persist_failed"
)

// Stats — счётчики воркера. Изменяются только под statsMu.
type Stats struct {
	Running             bool       `json:"running"`
	State               State      `json:"state"`
	Processed           int        `json:"processed"`
	Errors              int        `json:"errors"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error"`
	StopReason          string     `json:"stop_reason,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	StoppedAt           *time.Time `json:"stopped_at,omitempty"`
}

// Status — снимок состояния для API.
type Status struct {
	Feature string `json:"feature"`
	Stats

	// Extra — поля фичи (queue_remaining, send_stats, ...).
	Extra map[string]any `json:"-"`
}

// MarshalJSON выводит Extra на верхний уровень рядом со счётчиками.
func (s Status) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+10)
	maps.Copy(out, s.Extra)

	out["feature"] = s.Feature
	out["running"] = s.Running
	out["state"] = s.State
	out["processed"] = s.Processed
	out["errors"] = s.Errors
	out["consecutive_failures"] = s.ConsecutiveFailures
	out["last_error"] = s.LastError
	if s.StopReason != "" {
		out["stop_reason"] = s.StopReason
	}
	if s.StartedAt != nil {
		out["started_at"] = s.StartedAt
	}
	if s.StoppedAt != nil {
		out["stopped_at"] = s.StoppedAt
	}
	return json.Marshal(out)
}

// StopResult — итог Stop.
type StopResult struct {
	// Stopped — горутина завершилась в пределах StopTimeout.
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}
