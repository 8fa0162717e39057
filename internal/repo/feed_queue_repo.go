package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// FeedQueueRepo — очередь работ из ленты на добавление в избранное.
type FeedQueueRepo struct {
	pool *pgxpool.Pool
}

// NewFeedQueueRepo создаёт новый FeedQueueRepo.
func NewFeedQueueRepo(pool *pgxpool.Pool) *FeedQueueRepo {
	return &FeedQueueRepo{pool: pool}
}

// Add добавляет работу из ленты.
//
// В отличие от очереди комментариев, повторно увиденная работа
// возвращается в pending: очередь упорядочена только по времени ленты.
func (r *FeedQueueRepo) Add(ctx context.Context, deviationID string, ts int64) error {
	query := `
		INSERT INTO feed_queue (deviationid, ts, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (deviationid) DO UPDATE
		SET ts = GREATEST(feed_queue.ts, EXCLUDED.ts),
		    status = 'pending',
		    updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, deviationID, ts); err != nil {
		return fmt.Errorf("add feed item: %w", err)
	}
	return nil
}

// ClaimPending возвращает самую свежую работу в pending или nil.
// Строка не блокируется: воркер фичи единственный.
func (r *FeedQueueRepo) ClaimPending(ctx context.Context) (*domain.FeedItem, error) {
	query := `
		SELECT deviationid, ts, status, attempts, last_error, updated_at
		FROM feed_queue
		WHERE status = 'pending'
		ORDER BY ts DESC
		LIMIT 1
	`
	item, err := scanFeedItem(r.pool.QueryRow(ctx, query))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// MarkFaved переводит работу в faved.
func (r *FeedQueueRepo) MarkFaved(ctx context.Context, deviationID string) error {
	return r.setTerminal(ctx, deviationID, domain.StatusFaved, "")
}

// MarkFailed переводит работу в failed.
func (r *FeedQueueRepo) MarkFailed(ctx context.Context, deviationID, errMsg string) error {
	return r.setTerminal(ctx, deviationID, domain.StatusFailed, errMsg)
}

func (r *FeedQueueRepo) setTerminal(ctx context.Context, deviationID string, status domain.QueueStatus, errMsg string) error {
	query := `
		UPDATE feed_queue
		SET status = $2, last_error = $3, updated_at = now()
		WHERE deviationid = $1 AND status IN ('pending', 'processing')
	`
	result, err := r.pool.Exec(ctx, query, deviationID, status, errorText(errMsg))
	if err != nil {
		return fmt.Errorf("mark feed item %s: %w", status, err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// BumpAttempt увеличивает счётчик попыток, оставляя работу в pending.
func (r *FeedQueueRepo) BumpAttempt(ctx context.Context, deviationID, errMsg string) error {
	query := `
		UPDATE feed_queue
		SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE deviationid = $1 AND status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query, deviationID, errorText(errMsg))
	if err != nil {
		return fmt.Errorf("bump feed attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ResetFailed возвращает failed-работы в pending.
func (r *FeedQueueRepo) ResetFailed(ctx context.Context) (int64, error) {
	query := `
		UPDATE feed_queue
		SET status = 'pending', attempts = 0, last_error = NULL, updated_at = now()
		WHERE status = 'failed'
	`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset failed feed items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Clear удаляет работы в статусе status (пустой — все).
func (r *FeedQueueRepo) Clear(ctx context.Context, status domain.QueueStatus) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM feed_queue WHERE ($1::text IS NULL OR status = $1)`, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("clear feed queue: %w", err)
	}
	return result.RowsAffected(), nil
}

// Remove удаляет работы по ключам.
func (r *FeedQueueRepo) Remove(ctx context.Context, deviationIDs []string) (int64, error) {
	if len(deviationIDs) == 0 {
		return 0, nil
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM feed_queue WHERE deviationid = ANY($1)`, deviationIDs)
	if err != nil {
		return 0, fmt.Errorf("remove feed items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats возвращает количество работ по статусам.
func (r *FeedQueueRepo) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM feed_queue GROUP BY status`)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("feed queue stats: %w", err)
	}
	return collectStats(rows)
}

// CountPending возвращает количество работ в pending.
func (r *FeedQueueRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM feed_queue WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending feed items: %w", err)
	}
	return n, nil
}

// List возвращает работы с фильтрацией по статусу.
func (r *FeedQueueRepo) List(ctx context.Context, filter ListFilter) ([]domain.FeedItem, error) {
	query := `
		SELECT deviationid, ts, status, attempts, last_error, updated_at
		FROM feed_queue
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY ts DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, statusFilter(filter.Status), filter.limit(), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list feed queue: %w", err)
	}
	defer rows.Close()

	var items []domain.FeedItem
	for rows.Next() {
		item, err := scanFeedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanFeedItem(row pgx.Row) (*domain.FeedItem, error) {
	var item domain.FeedItem
	var lastError *string

	err := row.Scan(&item.DeviationID, &item.Ts, &item.Status, &item.Attempts, &lastError, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feed item: %w", err)
	}
	item.LastError = deref(lastError)
	return &item, nil
}
