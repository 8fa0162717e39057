package broadcast

import (
	"context"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
)

// Queue — очередь сообщений в профиль (repo.ProfileQueueRepo).
type Queue interface {
	Add(ctx context.Context, messageID int64, recipients []domain.Recipient, priority int) (int64, error)
	ClaimPending(ctx context.Context) (*domain.ProfileItem, error)
	MarkCompleted(ctx context.Context, queueID int64) error
	MarkFailed(ctx context.Context, queueID int64, errMsg string) error
	BumpAttempt(ctx context.Context, queueID int64, errMsg string) error
	ResetFailed(ctx context.Context) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

// Logs — журнал сообщений (repo.ProfileLogRepo).
type Logs interface {
	Add(ctx context.Context, l *domain.ProfileLog) error
	Stats(ctx context.Context) (domain.LogStats, error)
	ContactedIDs(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// Templates — шаблоны сообщений (repo.TemplateRepo).
type Templates interface {
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
	ListActive(ctx context.Context) ([]domain.Template, error)
	CountActive(ctx context.Context) (int, error)
}

// Watchers — сохранённые наблюдатели (repo.WatcherRepo).
type Watchers interface {
	Upsert(ctx context.Context, watchers []domain.Recipient) error
	List(ctx context.Context, limit int) ([]domain.Watcher, error)
	DeleteNotIn(ctx context.Context, usernames []string) (int64, error)
}

// API — вызовы DeviantArt, нужные рассылке.
type API interface {
	Watchers(ctx context.Context, token, username string, offset, limit int) (*deviantart.Page[deviantart.Watcher], error)
	PostProfileComment(ctx context.Context, token, username, body string) (string, error)
	RecommendedDelay() time.Duration
}
