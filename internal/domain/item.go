package domain

import "time"

// CommentItem — работа в очереди на комментирование.
// Естественный ключ — DeviationID.
type CommentItem struct {
	DeviationID    string      `json:"deviationid"`
	DeviationURL   string      `json:"deviation_url,omitempty"`
	Title          string      `json:"title,omitempty"`
	AuthorUsername string      `json:"author_username,omitempty"`
	AuthorUserID   string      `json:"author_userid,omitempty"`
	Source         string      `json:"source"`
	Ts             int64       `json:"ts"`
	Status         QueueStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// FeedItem — работа из ленты в очереди на избранное.
type FeedItem struct {
	DeviationID string      `json:"deviationid"`
	Ts          int64       `json:"ts"`
	Status      QueueStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"last_error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ProfileItem — получатель сообщения в профиль.
// Естественный ключ — пара (MessageID, RecipientUserID); ID — суррогатный.
type ProfileItem struct {
	ID                int64       `json:"queue_id"`
	MessageID         int64       `json:"message_id"`
	RecipientUsername string      `json:"recipient_username"`
	RecipientUserID   string      `json:"recipient_userid"`
	Status            QueueStatus `json:"status"`
	Priority          int         `json:"priority"`
	Attempts          int         `json:"attempts"`
	LastError         string      `json:"last_error,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Recipient — адресат для постановки в очередь сообщений.
type Recipient struct {
	Username string `json:"username"`
	UserID   string `json:"userid"`
}

// QueueStats — количество элементов по статусам.
type QueueStats struct {
	ByStatus map[QueueStatus]int `json:"by_status"`
	Total    int                 `json:"total"`
}

// Count возвращает количество элементов в статусе s.
func (q QueueStats) Count(s QueueStatus) int {
	return q.ByStatus[s]
}
