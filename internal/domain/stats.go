package domain

import "time"

// DeviationStats — текущая статистика работы.
type DeviationStats struct {
	DeviationID string    `json:"deviationid"`
	Title       string    `json:"title"`
	ThumbURL    string    `json:"thumb_url,omitempty"`
	IsMature    bool      `json:"is_mature"`
	Views       int       `json:"views"`
	Favourites  int       `json:"favourites"`
	Comments    int       `json:"comments"`
	Downloads   int       `json:"downloads"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatsSnapshot — дневной снимок статистики работы.
type StatsSnapshot struct {
	DeviationID string `json:"deviationid"`
	// Date — день снимка в формате 2006-01-02.
	Date       string `json:"snapshot_date"`
	Views      int    `json:"views"`
	Favourites int    `json:"favourites"`
	Comments   int    `json:"comments"`
}

// DeviationMetadata — метаданные работы.
type DeviationMetadata struct {
	DeviationID    string    `json:"deviationid"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	License        string    `json:"license,omitempty"`
	AllowsComments bool      `json:"allows_comments"`
	Tags           []string  `json:"tags"`
	IsFavourited   bool      `json:"is_favourited"`
	IsWatching     bool      `json:"is_watching"`
	IsMature       bool      `json:"is_mature"`
	MatureLevel    string    `json:"mature_level,omitempty"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Submission     []byte    `json:"-"`
	UpdatedAt      time.Time `json:"updated_at"`
}
