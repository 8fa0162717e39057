package domain

import "time"

// CommentLog — запись журнала комментариев.
type CommentLog struct {
	ID             int64     `json:"log_id"`
	MessageID      *int64    `json:"message_id,omitempty"`
	DeviationID    string    `json:"deviationid"`
	DeviationURL   string    `json:"deviation_url,omitempty"`
	AuthorUsername string    `json:"author_username,omitempty"`
	CommentID      string    `json:"commentid,omitempty"`
	CommentText    string    `json:"comment_text,omitempty"`
	Status         LogStatus `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// ProfileLog — запись журнала сообщений в профиль.
type ProfileLog struct {
	ID                int64     `json:"log_id"`
	MessageID         int64     `json:"message_id"`
	RecipientUsername string    `json:"recipient_username"`
	RecipientUserID   string    `json:"recipient_userid"`
	CommentID         string    `json:"commentid,omitempty"`
	Status            LogStatus `json:"status"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// LogStats — итоги журнала.
type LogStats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Deleted int `json:"deleted"`
	Total   int `json:"total"`
}
