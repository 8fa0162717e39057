package domain

import "time"

// Template — шаблон сообщения с блоками {a|b|c}.
type Template struct {
	ID        int64     `json:"message_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
