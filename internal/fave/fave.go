// Package fave — сбор ленты и массовое добавление работ в избранное.
package fave

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/telemetry"
	"github.com/shaiso/Deviart/internal/worker"
)

// FeatureName — имя фичи избранного.
const FeatureName = "fave"

// DefaultMaxPages — страниц ленты за один сбор по умолчанию.
const DefaultMaxPages = 5

// limitErrorCode — error_code ответа 400, которым API сообщает о лимите избранного.
const limitErrorCode = 4

// Queue — очередь избранного (repo.FeedQueueRepo).
type Queue interface {
	Add(ctx context.Context, deviationID string, ts int64) error
	ClaimPending(ctx context.Context) (*domain.FeedItem, error)
	MarkFaved(ctx context.Context, deviationID string) error
	MarkFailed(ctx context.Context, deviationID, errMsg string) error
	BumpAttempt(ctx context.Context, deviationID, errMsg string) error
	CountPending(ctx context.Context) (int, error)
}

// OffsetStore — сохранённый offset ленты (repo.StateRepo).
type OffsetStore interface {
	Offset(ctx context.Context, key string) (int, error)
	SetOffset(ctx context.Context, key string, offset int) error
}

// API — вызовы DeviantArt, нужные фиче.
type API interface {
	BrowseFeed(ctx context.Context, token string, feed deviantart.Feed, offset, limit int) (*deviantart.Page[deviantart.Deviation], error)
	Fave(ctx context.Context, token, deviationID string) error
	RecommendedDelay() time.Duration
}

// CollectResult — итог сбора ленты.
type CollectResult struct {
	Pages  int `json:"pages"`
	Added  int `json:"deviations_added"`
	Offset int `json:"offset"`
}

// Config — зависимости Service.
type Config struct {
	API    API
	Queue  Queue
	State  OffsetStore
	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *slog.Logger
}

// Service собирает ленту deviantsyouwatch и добавляет работы в избранное.
// Реализует worker.Feature[domain.FeedItem] и worker.Halter.
type Service struct {
	api    API
	queue  Queue
	state  OffsetStore
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	s := &Service{
		api:    cfg.API,
		queue:  cfg.Queue,
		state:  cfg.State,
		sleep:  cfg.Sleep,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if s.sleep == nil {
		s.sleep = httpclient.SleepContext
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Collect листает ленту с сохранённого offset'а и ставит работы в очередь.
// Повторно увиденная работа снова становится pending.
func (s *Service) Collect(ctx context.Context, token string, maxPages int) (*CollectResult, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	offset, err := s.state.Offset(ctx, repo.StateFeedOffset)
	if err != nil {
		return nil, fmt.Errorf("load offset: %w", err)
	}
	s.logger.Info("feed collection started", "max_pages", maxPages, "offset", offset)

	result := &CollectResult{Offset: offset}
	for result.Pages < maxPages {
		page, err := s.api.BrowseFeed(ctx, token, deviantart.FeedWatch, offset, deviantart.FeedPageLimit)
		if err != nil {
			if result.Pages == 0 {
				return nil, fmt.Errorf("browse feed: %w", err)
			}
			s.logger.Error("feed fetch failed", "error", err, "pages", result.Pages)
			break
		}
		result.Pages++

		now := s.now().Unix()
		for _, d := range page.Results {
			if d.DeviationID == "" {
				continue
			}
			ts := int64(d.PublishedTime)
			if ts == 0 {
				ts = now
			}
			if err := s.queue.Add(ctx, d.DeviationID, ts); err != nil {
				return nil, fmt.Errorf("add %s: %w", d.DeviationID, err)
			}
			result.Added++
		}

		if page.NextOffset != nil {
			offset = *page.NextOffset
			if err := s.state.SetOffset(ctx, repo.StateFeedOffset, offset); err != nil {
				return nil, fmt.Errorf("save offset: %w", err)
			}
			result.Offset = offset
		}

		if !page.HasMore || result.Pages >= maxPages {
			break
		}
		if err := s.sleep(ctx, s.api.RecommendedDelay()); err != nil {
			return result, err
		}
	}

	telemetry.CollectedItems.WithLabelValues("fave").Add(float64(result.Added))
	s.logger.Info("feed collection completed",
		"pages", result.Pages,
		"deviations", result.Added,
		"offset", result.Offset,
	)
	return result, nil
}

// CollectArgs — Collect с параметрами команды: max_pages.
func (s *Service) CollectArgs(ctx context.Context, token string, args map[string]string) (any, error) {
	maxPages := 0
	if v := args["max_pages"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, worker.Preconditionf("invalid max_pages %q", v)
		}
		maxPages = n
	}
	return s.Collect(ctx, token, maxPages)
}

// Name реализует worker.Feature.
func (s *Service) Name() string { return FeatureName }

// Validate требует непустую очередь.
func (s *Service) Validate(ctx context.Context, _ worker.StartOptions) error {
	pending, err := s.queue.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if pending == 0 {
		return worker.Preconditionf("queue is empty, collect feed first")
	}
	return nil
}

// Claim реализует worker.Feature.
func (s *Service) Claim(ctx context.Context) (*domain.FeedItem, error) {
	return s.queue.ClaimPending(ctx)
}

// Key реализует worker.Feature.
func (s *Service) Key(item *domain.FeedItem) string { return item.DeviationID }

// Attempts реализует worker.Feature.
func (s *Service) Attempts(item *domain.FeedItem) int { return item.Attempts }

// Prepare реализует worker.Feature; подготовка не нужна.
func (s *Service) Prepare(context.Context, string, *domain.FeedItem) error { return nil }

// Execute добавляет работу в избранное.
func (s *Service) Execute(ctx context.Context, token string, item *domain.FeedItem) error {
	return s.api.Fave(ctx, token, item.DeviationID)
}

// Succeeded реализует worker.Feature.
func (s *Service) Succeeded(ctx context.Context, item *domain.FeedItem) error {
	return s.queue.MarkFaved(ctx, item.DeviationID)
}

// Failed реализует worker.Feature.
func (s *Service) Failed(ctx context.Context, item *domain.FeedItem, cause error, permanent bool) error {
	msg := httpclient.ErrorText(cause)
	if permanent {
		return s.queue.MarkFailed(ctx, item.DeviationID, msg)
	}
	return s.queue.BumpAttempt(ctx, item.DeviationID, msg)
}

// Halt останавливает воркер на 400 с error_code 4: лимит избранного
// исчерпан, элемент остаётся pending.
func (s *Service) Halt(err error) bool {
	apiErr, ok := httpclient.AsAPIError(err)
	if !ok || apiErr.Status != 400 {
		return false
	}
	code, ok := apiErr.Code()
	return ok && code == limitErrorCode
}

// ReportStatus добавляет в статус остаток очереди.
func (s *Service) ReportStatus(ctx context.Context) map[string]any {
	pending, err := s.queue.CountPending(ctx)
	if err != nil {
		return nil
	}
	return map[string]any{"queue_remaining": pending}
}

var (
	_ worker.Feature[domain.FeedItem] = (*Service)(nil)
	_ worker.Halter                   = (*Service)(nil)
)
