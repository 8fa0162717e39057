package comments

import (
	"context"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
)

// Queue — очередь комментирования (repo.CommentQueueRepo).
type Queue interface {
	Add(ctx context.Context, item *domain.CommentItem) error
	ClaimPending(ctx context.Context) (*domain.CommentItem, error)
	MarkCommented(ctx context.Context, deviationID string) error
	MarkFailed(ctx context.Context, deviationID, errMsg string) error
	BumpAttempt(ctx context.Context, deviationID, errMsg string) error
	Remove(ctx context.Context, deviationIDs []string) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

// Logs — журнал комментариев (repo.CommentLogRepo).
type Logs interface {
	Add(ctx context.Context, l *domain.CommentLog) error
	CommentedIDs(ctx context.Context, deviationIDs []string) (map[string]bool, error)
}

// Templates — шаблоны комментариев (repo.TemplateRepo).
type Templates interface {
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
	ListActive(ctx context.Context) ([]domain.Template, error)
	CountActive(ctx context.Context) (int, error)
}

// OffsetStore — сохранённые offset'ы лент (repo.StateRepo).
type OffsetStore interface {
	Offset(ctx context.Context, key string) (int, error)
	SetOffset(ctx context.Context, key string, offset int) error
}

// FeedAPI — чтение лент.
type FeedAPI interface {
	BrowseFeed(ctx context.Context, token string, feed deviantart.Feed, offset, limit int) (*deviantart.Page[deviantart.Deviation], error)
	RecommendedDelay() time.Duration
}

// API — вызовы, нужные постеру.
type API interface {
	GetDeviation(ctx context.Context, token, deviationID string) (*deviantart.Deviation, error)
	PostDeviationComment(ctx context.Context, token, deviationID, body string) (string, error)
	Fave(ctx context.Context, token, deviationID string) error
}
