// Package stats синхронизирует статистику работ галереи.
//
// Синхронизация — ограниченная кампания: Prime загружает галерею и делит
// работы на пачки по deviantart.MetadataBatchSize; каждая пачка — один
// элемент работы для worker.Worker. Воркер останавливается, когда пачки
// закончились.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/telemetry"
	"github.com/shaiso/Deviart/internal/worker"
)

// FeatureName — имя фичи статистики.
const FeatureName = "stats"

// MaxAttempts — попыток на пачку.
const MaxAttempts = 3

// maxGalleryPages ограничивает обход галереи.
const maxGalleryPages = 200

// API — вызовы DeviantArt, нужные синхронизации.
type API interface {
	Gallery(ctx context.Context, token, username string, offset, limit int) (*deviantart.Page[deviantart.Deviation], error)
	Metadata(ctx context.Context, token string, deviationIDs []string) ([]deviantart.Metadata, error)
	RecommendedDelay() time.Duration
}

// Store — хранилище статистики (repo.StatsRepo).
type Store interface {
	SaveBatch(ctx context.Context, stats []domain.DeviationStats, snapshots []domain.StatsSnapshot, meta []domain.DeviationMetadata) error
}

// Batch — пачка работ для одного запроса метаданных.
type Batch struct {
	Index      int
	Deviations []deviantart.Deviation
	Attempts   int

	metadata []deviantart.Metadata
}

// IDs возвращает идентификаторы работ пачки.
func (b *Batch) IDs() []string {
	ids := make([]string, len(b.Deviations))
	for i, d := range b.Deviations {
		ids[i] = d.DeviationID
	}
	return ids
}

// SyncResult — итог синхронизации.
type SyncResult struct {
	Username string `json:"username"`
	Date     string `json:"date"`
	Batches  int    `json:"total_batches"`
	Synced   int    `json:"synced"`
	Failed   int    `json:"failed"`
}

// Config — зависимости Service.
type Config struct {
	API   API
	Store Store

	// Username — чью галерею синхронизировать по умолчанию.
	Username string

	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *slog.Logger
}

// Service — синхронизация статистики; реализует worker.Feature[Batch]
// и worker.Primer.
type Service struct {
	api      API
	store    Store
	username string
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *slog.Logger

	// mu защищает состояние текущего запуска.
	mu      sync.Mutex
	target  string
	pending []*Batch
	result  SyncResult
}

// New создаёт Service.
func New(cfg Config) *Service {
	s := &Service{
		api:      cfg.API,
		store:    cfg.Store,
		username: cfg.Username,
		sleep:    cfg.Sleep,
		now:      cfg.Now,
		logger:   cfg.Logger,
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

// SyncOnce синхронно загружает галерею и сохраняет статистику всех пачек.
// Ошибка пачки не прерывает синхронизацию остальных.
func (s *Service) SyncOnce(ctx context.Context, token, username string) (*SyncResult, error) {
	if username == "" {
		username = s.username
	}
	if username == "" {
		return nil, worker.Preconditionf("username is required")
	}

	batches, err := s.loadBatches(ctx, token, username)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Username: username, Date: s.today(), Batches: len(batches)}
	for i, b := range batches {
		if i > 0 {
			if err := s.sleep(ctx, s.api.RecommendedDelay()); err != nil {
				return result, err
			}
		}
		if err := s.Execute(ctx, token, b); err != nil {
			s.logger.Warn("stats batch failed", "batch", b.Index, "error", httpclient.ErrorText(err))
			result.Failed += len(b.Deviations)
			continue
		}
		if err := s.save(ctx, b); err != nil {
			return result, err
		}
		result.Synced += len(b.metadata)
	}

	s.logger.Info("stats synced", "username", username, "synced", result.Synced, "failed", result.Failed)
	return result, nil
}

// SyncArgs — SyncOnce с параметрами команды: username.
func (s *Service) SyncArgs(ctx context.Context, token string, args map[string]string) (any, error) {
	return s.SyncOnce(ctx, token, args["username"])
}

// Name реализует worker.Feature.
func (s *Service) Name() string { return FeatureName }

// Validate определяет, чью галерею синхронизировать (параметр username).
func (s *Service) Validate(_ context.Context, opts worker.StartOptions) error {
	username := opts.Params["username"]
	if username == "" {
		username = s.username
	}
	if username == "" {
		return worker.Preconditionf("username is required")
	}

	s.mu.Lock()
	s.target = username
	s.pending = nil
	s.result = SyncResult{Username: username, Date: s.today()}
	s.mu.Unlock()
	return nil
}

// Prime загружает галерею и формирует очередь пачек.
func (s *Service) Prime(ctx context.Context, token string) error {
	s.mu.Lock()
	username := s.target
	s.mu.Unlock()

	batches, err := s.loadBatches(ctx, token, username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = batches
	s.result.Batches = len(batches)
	s.mu.Unlock()
	return nil
}

// Claim возвращает следующую пачку.
func (s *Service) Claim(context.Context) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	return s.pending[0], nil
}

// Key реализует worker.Feature.
func (s *Service) Key(b *Batch) string { return fmt.Sprintf("batch-%d", b.Index) }

// Attempts реализует worker.Feature.
func (s *Service) Attempts(b *Batch) int { return b.Attempts }

// Prepare реализует worker.Feature; подготовка не нужна.
func (s *Service) Prepare(context.Context, string, *Batch) error { return nil }

// Execute запрашивает метаданные и статистику пачки.
func (s *Service) Execute(ctx context.Context, token string, b *Batch) error {
	meta, err := s.api.Metadata(ctx, token, b.IDs())
	if err != nil {
		return err
	}
	b.metadata = meta
	return nil
}

// Succeeded сохраняет статистику пачки. Несохранённая пачка учитывается
// в failed.
func (s *Service) Succeeded(ctx context.Context, b *Batch) error {
	err := s.save(ctx, b)
	s.dequeue(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.result.Failed += len(b.Deviations)
		return err
	}
	s.result.Synced += len(b.metadata)
	return nil
}

// Failed убирает пачку окончательно или переносит её в конец очереди.
func (s *Service) Failed(_ context.Context, b *Batch, _ error, permanent bool) error {
	s.dequeue(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if permanent {
		s.result.Failed += len(b.Deviations)
		return nil
	}
	b.Attempts++
	s.pending = append(s.pending, b)
	return nil
}

// ReportStatus добавляет прогресс синхронизации.
func (s *Service) ReportStatus(context.Context) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"username":      s.result.Username,
		"total_batches": s.result.Batches,
		"synced":        s.result.Synced,
		"failed":        s.result.Failed,
		"remaining":     len(s.pending),
	}
}

func (s *Service) dequeue(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p == b {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// loadBatches обходит галерею и делит работы на пачки.
func (s *Service) loadBatches(ctx context.Context, token, username string) ([]*Batch, error) {
	var deviations []deviantart.Deviation
	seen := make(map[string]bool)
	offset := 0

	for page := 0; page < maxGalleryPages; page++ {
		if page > 0 {
			if err := s.sleep(ctx, s.api.RecommendedDelay()); err != nil {
				return nil, err
			}
		}

		p, err := s.api.Gallery(ctx, token, username, offset, deviantart.GalleryPageLimit)
		if err != nil {
			return nil, fmt.Errorf("load gallery: %w", err)
		}
		for _, d := range p.Results {
			if d.DeviationID == "" || seen[d.DeviationID] {
				continue
			}
			seen[d.DeviationID] = true
			deviations = append(deviations, d)
		}

		if !p.HasMore || p.NextOffset == nil {
			break
		}
		offset = *p.NextOffset
	}

	var batches []*Batch
	for start := 0; start < len(deviations); start += deviantart.MetadataBatchSize {
		end := min(start+deviantart.MetadataBatchSize, len(deviations))
		batches = append(batches, &Batch{Index: len(batches), Deviations: deviations[start:end]})
	}

	telemetry.CollectedItems.WithLabelValues("gallery").Add(float64(len(deviations)))
	s.logger.Info("gallery loaded", "username", username, "deviations", len(deviations), "batches", len(batches))
	return batches, nil
}

// save сохраняет текущую статистику, дневной снимок и метаданные пачки.
func (s *Service) save(ctx context.Context, b *Batch) error {
	basics := make(map[string]deviantart.Deviation, len(b.Deviations))
	for _, d := range b.Deviations {
		basics[d.DeviationID] = d
	}

	now := s.now()
	today := now.Format(time.DateOnly)

	stats := make([]domain.DeviationStats, 0, len(b.metadata))
	snapshots := make([]domain.StatsSnapshot, 0, len(b.metadata))
	meta := make([]domain.DeviationMetadata, 0, len(b.metadata))

	for _, m := range b.metadata {
		if m.DeviationID == "" {
			continue
		}
		basic := basics[m.DeviationID]
		mature := m.IsMature || m.MatureLevel != "" || basic.IsMature

		title := basic.Title
		if title == "" {
			title = m.Title
		}
		if title == "" {
			title = "Untitled"
		}

		stats = append(stats, domain.DeviationStats{
			DeviationID: m.DeviationID,
			Title:       title,
			ThumbURL:    basic.ThumbURL(),
			IsMature:    mature,
			Views:       m.Stats.Views,
			Favourites:  m.Stats.Favourites,
			Comments:    m.Stats.Comments,
			Downloads:   m.Stats.Downloads,
			UpdatedAt:   now,
		})
		snapshots = append(snapshots, domain.StatsSnapshot{
			DeviationID: m.DeviationID,
			Date:        today,
			Views:       m.Stats.Views,
			Favourites:  m.Stats.Favourites,
			Comments:    m.Stats.Comments,
		})

		dm := domain.DeviationMetadata{
			DeviationID:    m.DeviationID,
			Title:          title,
			Description:    m.Description,
			License:        m.License,
			AllowsComments: m.AllowsComments,
			Tags:           m.TagNames(),
			IsFavourited:   m.IsFavourited,
			IsWatching:     m.IsWatching,
			IsMature:       mature,
			MatureLevel:    m.MatureLevel,
			Submission:     m.Submission,
			UpdatedAt:      now,
		}
		if m.Author != nil {
			dm.AuthorUsername = m.Author.Username
		}
		meta = append(meta, dm)
	}

	if err := s.store.SaveBatch(ctx, stats, snapshots, meta); err != nil {
		return fmt.Errorf("save stats batch %d: %w", b.Index, err)
	}
	return nil
}

func (s *Service) today() string {
	return s.now().Format(time.DateOnly)
}

var (
	_ worker.Feature[Batch] = (*Service)(nil)
	_ worker.Primer         = (*Service)(nil)
)
