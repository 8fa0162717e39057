// Package broadcast — рассылка сообщений в профили наблюдателей.
//
// Рассылка — ограниченная кампания: воркер останавливается, когда
// в очереди не осталось pending-получателей.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/telemetry"
	"github.com/shaiso/Deviart/internal/worker"
)

// FeatureName — имя фичи рассылки.
const FeatureName = "broadcast"

// MaxAttempts — ошибка отправки сразу делает получателя failed;
// вернуть его можно через RetryFailed.
const MaxAttempts = 1

const (
	defaultMaxWatchers = 50
	defaultQueueLimit  = 1000
)

// Config — зависимости Service.
type Config struct {
	API       API
	Queue     Queue
	Logs      Logs
	Templates Templates
	Watchers  Watchers

	// Username — аккаунт, чьих наблюдателей загружать по умолчанию.
	Username string

	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Service — наблюдатели, очередь рассылки и фича для worker.Worker.
type Service struct {
	api       API
	queue     Queue
	logs      Logs
	templates Templates
	watchers  Watchers
	username  string
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	s := &Service{
		api:       cfg.API,
		queue:     cfg.Queue,
		logs:      cfg.Logs,
		templates: cfg.Templates,
		watchers:  cfg.Watchers,
		username:  cfg.Username,
		sleep:     cfg.Sleep,
		logger:    cfg.Logger,
	}
	if s.sleep == nil {
		s.sleep = httpclient.SleepContext
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// FetchResult — итог загрузки наблюдателей.
type FetchResult struct {
	Username     string `json:"username"`
	Fetched      int    `json:"watchers_count"`
	HasMore      bool   `json:"has_more"`
	FetchFailed  bool   `json:"fetch_failed"`
	Pruned       bool   `json:"pruned"`
	DeletedCount int64  `json:"deleted_count"`
}

// FetchWatchers загружает до maxWatchers наблюдателей username и сохраняет их.
// Отписавшиеся удаляются, только если загружен полный список: без ошибок
// и с has_more=false.
func (s *Service) FetchWatchers(ctx context.Context, token, username string, maxWatchers int) (*FetchResult, error) {
	if username == "" {
		username = s.username
	}
	if username == "" {
		return nil, worker.Preconditionf("username is required")
	}
	if maxWatchers <= 0 {
		maxWatchers = defaultMaxWatchers
	}

	logger := s.logger.With("username", username)
	logger.Info("fetching watchers", "max_watchers", maxWatchers)

	result := &FetchResult{Username: username}
	var usernames []string
	offset := 0
	for result.Fetched < maxWatchers {
		page, err := s.api.Watchers(ctx, token, username, offset, deviantart.WatchersPageLimit)
		if err != nil {
			if result.Fetched == 0 && offset == 0 {
				return nil, fmt.Errorf("fetch watchers: %w", err)
			}
			logger.Error("watchers fetch failed", "error", err, "fetched", result.Fetched)
			result.FetchFailed = true
			break
		}

		batch := make([]domain.Recipient, 0, len(page.Results))
		truncated := false
		for i, w := range page.Results {
			if w.User.Username == "" || w.User.UserID == "" {
				continue
			}
			batch = append(batch, domain.Recipient{Username: w.User.Username, UserID: w.User.UserID})
			if result.Fetched+len(batch) >= maxWatchers {
				truncated = i < len(page.Results)-1
				break
			}
		}
		if err := s.watchers.Upsert(ctx, batch); err != nil {
			return nil, fmt.Errorf("save watchers: %w", err)
		}
		for _, r := range batch {
			usernames = append(usernames, r.Username)
		}
		result.Fetched += len(batch)
		// Недочитанная страница — список неполный.
		result.HasMore = page.HasMore || truncated

		if page.NextOffset != nil {
			offset = *page.NextOffset
		} else {
			offset += deviantart.WatchersPageLimit
		}

		if !page.HasMore || result.Fetched >= maxWatchers {
			break
		}
		if err := s.sleep(ctx, s.api.RecommendedDelay()); err != nil {
			return result, err
		}
	}

	if !result.FetchFailed && !result.HasMore {
		deleted, err := s.watchers.DeleteNotIn(ctx, usernames)
		if err != nil {
			logger.Warn("failed to prune watchers", "error", err)
		} else {
			result.Pruned = true
			result.DeletedCount = deleted
		}
	}

	telemetry.CollectedItems.WithLabelValues("watchers").Add(float64(result.Fetched))
	logger.Info("watchers fetched",
		"count", result.Fetched,
		"has_more", result.HasMore,
		"pruned", result.Pruned,
		"deleted", result.DeletedCount,
	)
	return result, nil
}

// FetchArgs — FetchWatchers с параметрами команды: username, max_watchers.
func (s *Service) FetchArgs(ctx context.Context, token string, args map[string]string) (any, error) {
	maxWatchers := 0
	if v := args["max_watchers"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, worker.Preconditionf("invalid max_watchers %q", v)
		}
		maxWatchers = n
	}
	return s.FetchWatchers(ctx, token, args["username"], maxWatchers)
}

// EnqueueResult — итог постановки получателей в очередь.
type EnqueueResult struct {
	Added          int64 `json:"added_count"`
	AlreadySent    int   `json:"already_sent_count"`
	RecipientsSeen int   `json:"recipients"`
}

// Enqueue ставит получателей в очередь для шаблона messageID.
// Пустой recipients — все сохранённые наблюдатели. Получатели, которым
// уже писали, пропускаются.
func (s *Service) Enqueue(ctx context.Context, messageID int64, recipients []domain.Recipient) (*EnqueueResult, error) {
	t, err := s.templates.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("template %d: %w", messageID, err)
	}
	if !t.IsActive {
		return nil, worker.Preconditionf("template %d is not active", messageID)
	}

	if len(recipients) == 0 {
		saved, err := s.watchers.List(ctx, defaultQueueLimit)
		if err != nil {
			return nil, fmt.Errorf("list watchers: %w", err)
		}
		for _, w := range saved {
			recipients = append(recipients, domain.Recipient{Username: w.Username, UserID: w.UserID})
		}
	}

	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.UserID)
	}
	contacted, err := s.logs.ContactedIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load send history: %w", err)
	}

	result := &EnqueueResult{RecipientsSeen: len(recipients)}
	fresh := make([]domain.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if r.Username == "" || r.UserID == "" {
			continue
		}
		if contacted[r.UserID] {
			result.AlreadySent++
			continue
		}
		fresh = append(fresh, r)
	}

	result.Added, err = s.queue.Add(ctx, messageID, fresh, 0)
	if err != nil {
		return nil, fmt.Errorf("enqueue recipients: %w", err)
	}
	s.logger.Info("recipients enqueued",
		"message_id", messageID,
		"added", result.Added,
		"already_sent", result.AlreadySent,
	)
	return result, nil
}

// RetryFailed возвращает failed-получателей в очередь с повышенным приоритетом.
func (s *Service) RetryFailed(ctx context.Context) (int64, error) {
	n, err := s.queue.ResetFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	s.logger.Info("failed recipients re-queued", "count", n)
	return n, nil
}
