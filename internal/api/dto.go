package api

import (
	"github.com/shaiso/Deviart/internal/domain"
)

// StartWorkerRequest — параметры запуска воркера.
// Для комментариев: template_id; для статистики: username.
type StartWorkerRequest struct {
	TemplateID int64  `json:"template_id,omitempty"`
	Username   string `json:"username,omitempty"`
}

func (r StartWorkerRequest) params() map[string]string {
	params := make(map[string]string)
	if r.TemplateID > 0 {
		params["template_id"] = itoa(r.TemplateID)
	}
	if r.Username != "" {
		params["username"] = r.Username
	}
	return params
}

// StopWorkerResponse — итог остановки.
type StopWorkerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stopped bool   `json:"stopped"`
}

// ClearQueueRequest — очистка очереди; пустой status — вся очередь.
type ClearQueueRequest struct {
	Status string `json:"status,omitempty"`
}

// RemoveFromQueueRequest — удаление элементов по ключам.
type RemoveFromQueueRequest struct {
	Keys []string `json:"keys"`
}

// CountResponse — число затронутых элементов.
type CountResponse struct {
	Count int64 `json:"count"`
}

// CommentsCollectRequest — сбор работ для комментариев.
type CommentsCollectRequest struct {
	Source   string `json:"source,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
}

// FaveCollectRequest — сбор ленты для избранного.
type FaveCollectRequest struct {
	MaxPages int `json:"max_pages,omitempty"`
}

// FetchWatchersRequest — загрузка наблюдателей.
type FetchWatchersRequest struct {
	Username    string `json:"username,omitempty"`
	MaxWatchers int    `json:"max_watchers,omitempty"`
}

// StatsSyncRequest — разовая синхронизация статистики.
type StatsSyncRequest struct {
	Username string `json:"username,omitempty"`
}

// EnqueueBroadcastRequest — постановка получателей в очередь рассылки.
// Пустой recipients — все сохранённые наблюдатели.
type EnqueueBroadcastRequest struct {
	MessageID  int64              `json:"message_id"`
	Recipients []domain.Recipient `json:"recipients,omitempty"`
}

// TemplateRequest — создание шаблона.
type TemplateRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// UpdateTemplateRequest — частичное обновление шаблона.
type UpdateTemplateRequest struct {
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}
