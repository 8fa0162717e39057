package deviantart

import (
	"encoding/json"
	"strconv"
	"strings"
)

// User — автор или наблюдатель.
type User struct {
	UserID   string `json:"userid"`
	Username string `json:"username"`
}

// Thumb — превью работы.
type Thumb struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Deviation — работа в ленте или галерее.
type Deviation struct {
	DeviationID   string    `json:"deviationid"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Author        *User     `json:"author"`
	PublishedTime Timestamp `json:"published_time"`
	IsMature      bool      `json:"is_mature"`
	IsDeleted     bool      `json:"is_deleted"`
	Thumbs        []Thumb   `json:"thumbs"`
}

// ThumbURL возвращает адрес первого превью.
func (d *Deviation) ThumbURL() string {
	if len(d.Thumbs) == 0 {
		return ""
	}
	return d.Thumbs[0].Src
}

// Timestamp — unix-время, которое API отдаёт строкой или числом.
type Timestamp int64

// UnmarshalJSON принимает "1700000000", 1700000000 и null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Нечисловое значение игнорируется — вызывающий подставит текущее время
		*t = 0
		return nil
	}
	*t = Timestamp(n)
	return nil
}

// Page — страница offset-пагинации.
type Page[T any] struct {
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset"`
	Results    []T  `json:"results"`
}

// Watcher — запись списка наблюдателей.
type Watcher struct {
	User User `json:"user"`
}

// Tag — тег работы.
type Tag struct {
	TagName string `json:"tag_name"`
}

// MetadataStats — расширенная статистика (ext_stats).
type MetadataStats struct {
	Views          int `json:"views"`
	ViewsToday     int `json:"views_today"`
	Favourites     int `json:"favourites"`
	Comments       int `json:"comments"`
	Downloads      int `json:"downloads"`
	DownloadsToday int `json:"downloads_today"`
}

// Metadata — ответ deviation/metadata.
type Metadata struct {
	DeviationID    string          `json:"deviationid"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	License        string          `json:"license"`
	AllowsComments bool            `json:"allows_comments"`
	Tags           []Tag           `json:"tags"`
	IsFavourited   bool            `json:"is_favourited"`
	IsWatching     bool            `json:"is_watching"`
	IsMature       bool            `json:"is_mature"`
	MatureLevel    string          `json:"mature_level"`
	Author         *User           `json:"author"`
	Stats          MetadataStats   `json:"stats"`
	Submission     json.RawMessage `json:"submission"`
}

// TagNames возвращает имена тегов.
func (m *Metadata) TagNames() []string {
	names := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		names = append(names, t.TagName)
	}
	return names
}
