package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// CommentQueueRepo — очередь работ на комментирование.
type CommentQueueRepo struct {
	pool *pgxpool.Pool
}

// NewCommentQueueRepo создаёт новый CommentQueueRepo.
func NewCommentQueueRepo(pool *pgxpool.Pool) *CommentQueueRepo {
	return &CommentQueueRepo{pool: pool}
}

// Add добавляет работу или обновляет уже известную.
//
// Повторное добавление не меняет статус: работа, отмеченная как
// commented или failed, не возвращается в pending. ts берётся большим
// из старого и нового.
func (r *CommentQueueRepo) Add(ctx context.Context, item *domain.CommentItem) error {
	query := `
		INSERT INTO comment_queue (deviationid, deviation_url, title, author_username,
		                           author_userid, source, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (deviationid) DO UPDATE
		SET deviation_url   = COALESCE(EXCLUDED.deviation_url, comment_queue.deviation_url),
		    title           = COALESCE(EXCLUDED.title, comment_queue.title),
		    author_username = COALESCE(EXCLUDED.author_username, comment_queue.author_username),
		    author_userid   = COALESCE(EXCLUDED.author_userid, comment_queue.author_userid),
		    ts              = GREATEST(comment_queue.ts, EXCLUDED.ts),
		    updated_at      = now()
	`
	_, err := r.pool.Exec(ctx, query,
		item.DeviationID,
		nullString(item.DeviationURL),
		nullString(item.Title),
		nullString(item.AuthorUsername),
		nullString(item.AuthorUserID),
		item.Source,
		item.Ts,
	)
	if err != nil {
		return fmt.Errorf("add comment item: %w", err)
	}
	return nil
}

// ClaimPending возвращает самую свежую работу в статусе pending или nil.
//
// Строка не блокируется и статус не меняется: обработку ведёт
// единственный воркер фичи. Если воркеров станет несколько, выборку
// нужно заменить на UPDATE ... RETURNING с FOR UPDATE SKIP LOCKED.
func (r *CommentQueueRepo) ClaimPending(ctx context.Context) (*domain.CommentItem, error) {
	query := `
		SELECT deviationid, deviation_url, title, author_username, author_userid,
		       source, ts, status, attempts, last_error, created_at, updated_at
		FROM comment_queue
		WHERE status = 'pending'
		ORDER BY ts DESC
		LIMIT 1
	`
	item, err := scanCommentItem(r.pool.QueryRow(ctx, query))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// MarkCommented переводит работу в commented.
func (r *CommentQueueRepo) MarkCommented(ctx context.Context, deviationID string) error {
	return r.setTerminal(ctx, deviationID, domain.StatusCommented, "")
}

// MarkFailed переводит работу в failed с текстом ошибки.
func (r *CommentQueueRepo) MarkFailed(ctx context.Context, deviationID, errMsg string) error {
	return r.setTerminal(ctx, deviationID, domain.StatusFailed, errMsg)
}

func (r *CommentQueueRepo) setTerminal(ctx context.Context, deviationID string, status domain.QueueStatus, errMsg string) error {
	query := `
		UPDATE comment_queue
		SET status = $2, last_error = $3, updated_at = now()
		WHERE deviationid = $1 AND status IN ('pending', 'processing')
	`
	result, err := r.pool.Exec(ctx, query, deviationID, status, errorText(errMsg))
	if err != nil {
		return fmt.Errorf("mark comment item %s: %w", status, err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// BumpAttempt увеличивает счётчик попыток, оставляя работу в pending.
func (r *CommentQueueRepo) BumpAttempt(ctx context.Context, deviationID, errMsg string) error {
	query := `
		UPDATE comment_queue
		SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE deviationid = $1 AND status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query, deviationID, errorText(errMsg))
	if err != nil {
		return fmt.Errorf("bump comment attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ResetFailed возвращает failed-работы в pending со сброшенными попытками.
func (r *CommentQueueRepo) ResetFailed(ctx context.Context) (int64, error) {
	query := `
		UPDATE comment_queue
		SET status = 'pending', attempts = 0, last_error = NULL, updated_at = now()
		WHERE status = 'failed'
	`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset failed comment items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Clear удаляет работы в статусе status (пустой — все).
func (r *CommentQueueRepo) Clear(ctx context.Context, status domain.QueueStatus) (int64, error) {
	query := `DELETE FROM comment_queue WHERE ($1::text IS NULL OR status = $1)`
	result, err := r.pool.Exec(ctx, query, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("clear comment queue: %w", err)
	}
	return result.RowsAffected(), nil
}

// Remove удаляет работы по ключам.
func (r *CommentQueueRepo) Remove(ctx context.Context, deviationIDs []string) (int64, error) {
	if len(deviationIDs) == 0 {
		return 0, nil
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM comment_queue WHERE deviationid = ANY($1)`, deviationIDs)
	if err != nil {
		return 0, fmt.Errorf("remove comment items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats возвращает количество работ по статусам.
func (r *CommentQueueRepo) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM comment_queue GROUP BY status`)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("comment queue stats: %w", err)
	}
	return collectStats(rows)
}

// CountPending возвращает количество работ в pending.
func (r *CommentQueueRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM comment_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending comment items: %w", err)
	}
	return n, nil
}

// List возвращает работы с фильтрацией по статусу.
func (r *CommentQueueRepo) List(ctx context.Context, filter ListFilter) ([]domain.CommentItem, error) {
	query := `
		SELECT deviationid, deviation_url, title, author_username, author_userid,
		       source, ts, status, attempts, last_error, created_at, updated_at
		FROM comment_queue
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY ts DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, statusFilter(filter.Status), filter.limit(), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list comment queue: %w", err)
	}
	defer rows.Close()

	var items []domain.CommentItem
	for rows.Next() {
		item, err := scanCommentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// scanCommentItem сканирует одну строку в CommentItem.
func scanCommentItem(row pgx.Row) (*domain.CommentItem, error) {
	var item domain.CommentItem
	var url, title, authorName, authorID, lastError *string

	err := row.Scan(
		&item.DeviationID,
		&url,
		&title,
		&authorName,
		&authorID,
		&item.Source,
		&item.Ts,
		&item.Status,
		&item.Attempts,
		&lastError,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan comment item: %w", err)
	}

	item.DeviationURL = deref(url)
	item.Title = deref(title)
	item.AuthorUsername = deref(authorName)
	item.AuthorUserID = deref(authorID)
	item.LastError = deref(lastError)
	return &item, nil
}
