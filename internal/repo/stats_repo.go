package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// StatsRepo — статистика и метаданные работ галереи.
type StatsRepo struct {
	pool *pgxpool.Pool
}

// NewStatsRepo создаёт новый StatsRepo.
func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// SaveBatch сохраняет статистику, дневные снимки и метаданные пачки работ
// в одной транзакции.
func (r *StatsRepo) SaveBatch(ctx context.Context, stats []domain.DeviationStats, snapshots []domain.StatsSnapshot, meta []domain.DeviationMetadata) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range stats {
		batch.Queue(`
			INSERT INTO deviation_stats (deviationid, title, thumb_url, is_mature,
			                             views, favourites, comments, downloads)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (deviationid) DO UPDATE
			SET title = EXCLUDED.title,
			    thumb_url = COALESCE(EXCLUDED.thumb_url, deviation_stats.thumb_url),
			    is_mature = EXCLUDED.is_mature,
			    views = EXCLUDED.views,
			    favourites = EXCLUDED.favourites,
			    comments = EXCLUDED.comments,
			    downloads = EXCLUDED.downloads,
			    updated_at = now()
		`, s.DeviationID, s.Title, nullString(s.ThumbURL), s.IsMature,
			s.Views, s.Favourites, s.Comments, s.Downloads)
	}
	for _, s := range snapshots {
		batch.Queue(`
			INSERT INTO stats_snapshots (deviationid, snapshot_date, views, favourites, comments)
			VALUES ($1, $2::text::date, $3, $4, $5)
			ON CONFLICT (deviationid, snapshot_date) DO UPDATE
			SET views = EXCLUDED.views,
			    favourites = EXCLUDED.favourites,
			    comments = EXCLUDED.comments
		`, s.DeviationID, s.Date, s.Views, s.Favourites, s.Comments)
	}
	for _, m := range meta {
		tags := m.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(`
			INSERT INTO deviation_metadata (deviationid, title, description, license,
			                                allows_comments, tags, is_favourited, is_watching,
			                                is_mature, mature_level, author_username, submission)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (deviationid) DO UPDATE
			SET title = EXCLUDED.title,
			    description = EXCLUDED.description,
			    license = EXCLUDED.license,
			    allows_comments = EXCLUDED.allows_comments,
			    tags = EXCLUDED.tags,
			    is_favourited = EXCLUDED.is_favourited,
			    is_watching = EXCLUDED.is_watching,
			    is_mature = EXCLUDED.is_mature,
			    mature_level = EXCLUDED.mature_level,
			    author_username = EXCLUDED.author_username,
			    submission = EXCLUDED.submission,
			    updated_at = now()
		`, m.DeviationID, m.Title, nullString(m.Description), nullString(m.License),
			m.AllowsComments, tags, m.IsFavourited, m.IsWatching, m.IsMature,
			nullString(m.MatureLevel), nullString(m.AuthorUsername), nullJSON(m.Submission))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save stats batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit stats batch: %w", err)
	}
	return nil
}

// List возвращает статистику работ по убыванию просмотров.
func (r *StatsRepo) List(ctx context.Context, limit int) ([]domain.DeviationStats, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT deviationid, COALESCE(title, ''), COALESCE(thumb_url, ''), is_mature,
		       views, favourites, comments, downloads, updated_at
		FROM deviation_stats
		ORDER BY views DESC, deviationid ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deviation stats: %w", err)
	}
	defer rows.Close()

	var result []domain.DeviationStats
	for rows.Next() {
		var s domain.DeviationStats
		if err := rows.Scan(&s.DeviationID, &s.Title, &s.ThumbURL, &s.IsMature,
			&s.Views, &s.Favourites, &s.Comments, &s.Downloads, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deviation stats: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// nullJSON возвращает nil для пустого JSON (для NULL в БД).
func nullJSON(b []byte) []byte {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}
