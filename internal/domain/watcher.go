package domain

import "time"

// Watcher — наблюдатель аккаунта.
type Watcher struct {
	ID        int64     `json:"watcher_id"`
	Username  string    `json:"username"`
	UserID    string    `json:"userid"`
	FetchedAt time.Time `json:"fetched_at"`
}
