package comments

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

// Source — лента, из которой собираются работы.
type Source string

const (
	SourceWatch  Source = "watch_feed"
	SourceGlobal Source = "global_feed"
)

// DefaultMaxPages — страниц за один сбор по умолчанию.
const DefaultMaxPages = 5

// ParseSource разбирает имя ленты; пустая строка — SourceWatch.
func ParseSource(s string) (Source, error) {
	switch s {
	case "", "watch", string(SourceWatch):
		return SourceWatch, nil
	case "global", string(SourceGlobal):
		return SourceGlobal, nil
	default:
		return "", worker.Preconditionf("unknown comment source %q", s)
	}
}

func (s Source) feed() deviantart.Feed {
	if s == SourceGlobal {
		return deviantart.FeedNewest
	}
	return deviantart.FeedWatch
}

func (s Source) offsetKey() string {
	if s == SourceGlobal {
		return repo.StateCommentGlobalOffset
	}
	return repo.StateCommentWatchOffset
}

// CollectResult — итог сбора.
type CollectResult struct {
	Source Source `json:"source"`
	Pages  int    `json:"pages"`
	Added  int    `json:"deviations_added"`
	Offset int    `json:"offset"`
}

// CollectorConfig — зависимости Collector.
type CollectorConfig struct {
	API    FeedAPI
	Queue  Queue
	Logs   Logs
	State  OffsetStore
	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *slog.Logger
}

// Collector собирает работы из лент в очередь комментирования.
type Collector struct {
	api    FeedAPI
	queue  Queue
	logs   Logs
	state  OffsetStore
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger *slog.Logger
}

// NewCollector создаёт Collector.
func NewCollector(cfg CollectorConfig) *Collector {
	c := &Collector{
		api:    cfg.API,
		queue:  cfg.Queue,
		logs:   cfg.Logs,
		state:  cfg.State,
		sleep:  cfg.Sleep,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if c.sleep == nil {
		c.sleep = httpclient.SleepContext
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Collect листает ленту source с сохранённого offset'а, пропуская уже
// прокомментированные работы. Offset сохраняется после каждой страницы.
//
// Ошибка на первой странице возвращается; на последующих сбор
// завершается с частичным результатом.
func (c *Collector) Collect(ctx context.Context, token string, source Source, maxPages int) (*CollectResult, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	key := source.offsetKey()

	offset, err := c.state.Offset(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load offset: %w", err)
	}

	logger := c.logger.With("source", source)
	logger.Info("comment collection started", "max_pages", maxPages, "offset", offset)

	result := &CollectResult{Source: source, Offset: offset}
	for result.Pages < maxPages {
		page, err := c.api.BrowseFeed(ctx, token, source.feed(), offset, deviantart.FeedPageLimit)
		if err != nil {
			if result.Pages == 0 {
				return nil, fmt.Errorf("browse %s: %w", source.feed(), err)
			}
			logger.Error("feed fetch failed", "error", err, "pages", result.Pages)
			break
		}

		added, err := c.enqueue(ctx, page.Results, source)
		if err != nil {
			return nil, err
		}
		result.Added += added
		result.Pages++

		if page.NextOffset != nil {
			offset = *page.NextOffset
			if err := c.state.SetOffset(ctx, key, offset); err != nil {
				return nil, fmt.Errorf("save offset: %w", err)
			}
			result.Offset = offset
		}

		if !page.HasMore || result.Pages >= maxPages {
			break
		}
		if err := c.sleep(ctx, c.api.RecommendedDelay()); err != nil {
			return result, err
		}
	}

	telemetry.CollectedItems.WithLabelValues("comments").Add(float64(result.Added))
	logger.Info("comment collection completed",
		"pages", result.Pages,
		"deviations", result.Added,
		"offset", result.Offset,
	)
	return result, nil
}

// CollectArgs — Collect с параметрами из команды: source, max_pages.
func (c *Collector) CollectArgs(ctx context.Context, token string, args map[string]string) (any, error) {
	source, err := ParseSource(args["source"])
	if err != nil {
		return nil, err
	}
	maxPages := 0
	if v := args["max_pages"]; v != "" {
		if maxPages, err = strconv.Atoi(v); err != nil {
			return nil, worker.Preconditionf("invalid max_pages %q", v)
		}
	}
	return c.Collect(ctx, token, source, maxPages)
}

func (c *Collector) enqueue(ctx context.Context, deviations []deviantart.Deviation, source Source) (int, error) {
	ids := make([]string, 0, len(deviations))
	for _, d := range deviations {
		if d.DeviationID != "" {
			ids = append(ids, d.DeviationID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	commented, err := c.logs.CommentedIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load commented ids: %w", err)
	}

	now := c.now().Unix()
	added := 0
	for _, d := range deviations {
		if d.DeviationID == "" || commented[d.DeviationID] {
			continue
		}

		item := &domain.CommentItem{
			DeviationID:  d.DeviationID,
			DeviationURL: d.URL,
			Title:        d.Title,
			Source:       string(source),
			Ts:           int64(d.PublishedTime),
		}
		if item.Ts == 0 {
			item.Ts = now
		}
		if d.Author != nil {
			item.AuthorUsername = d.Author.Username
			item.AuthorUserID = d.Author.UserID
		}

		if err := c.queue.Add(ctx, item); err != nil {
			c.logger.Warn("failed to add deviation to queue", "deviationid", d.DeviationID, "error", err)
			continue
		}
		added++
	}
	return added, nil
}
