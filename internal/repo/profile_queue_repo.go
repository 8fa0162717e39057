package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// RetryFailedPriority — приоритет, с которым failed-записи возвращаются в очередь.
const RetryFailedPriority = 10

// ProfileQueueRepo — очередь получателей сообщений в профиль.
type ProfileQueueRepo struct {
	pool *pgxpool.Pool
}

// NewProfileQueueRepo создаёт новый ProfileQueueRepo.
func NewProfileQueueRepo(pool *pgxpool.Pool) *ProfileQueueRepo {
	return &ProfileQueueRepo{pool: pool}
}

// Add ставит получателей в очередь сообщения messageID.
//
// Уже существующая пара (сообщение, получатель) сохраняет свой статус;
// приоритет берётся большим из старого и нового. Возвращает число
// затронутых строк.
func (r *ProfileQueueRepo) Add(ctx context.Context, messageID int64, recipients []domain.Recipient, priority int) (int64, error) {
	query := `
		INSERT INTO profile_queue (message_id, recipient_username, recipient_userid, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, recipient_userid) DO UPDATE
		SET recipient_username = EXCLUDED.recipient_username,
		    priority = GREATEST(profile_queue.priority, EXCLUDED.priority),
		    updated_at = now()
	`
	batch := &pgx.Batch{}
	for _, rc := range recipients {
		batch.Queue(query, messageID, rc.Username, rc.UserID, priority)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var added int64
	for range recipients {
		tag, err := results.Exec()
		if err != nil {
			return added, fmt.Errorf("add profile recipient: %w", err)
		}
		added += tag.RowsAffected()
	}
	return added, nil
}

// ClaimPending возвращает запись с наибольшим приоритетом (при равенстве — самую
// старую) или nil. Строка не блокируется: воркер фичи единственный.
func (r *ProfileQueueRepo) ClaimPending(ctx context.Context) (*domain.ProfileItem, error) {
	query := `
		SELECT queue_id, message_id, recipient_username, recipient_userid, status,
		       priority, attempts, last_error, created_at, updated_at
		FROM profile_queue
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC, queue_id ASC
		LIMIT 1
	`
	item, err := scanProfileItem(r.pool.QueryRow(ctx, query))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// MarkCompleted переводит запись в completed.
func (r *ProfileQueueRepo) MarkCompleted(ctx context.Context, queueID int64) error {
	return r.setTerminal(ctx, queueID, domain.StatusCompleted, "")
}

// MarkFailed переводит запись в failed.
func (r *ProfileQueueRepo) MarkFailed(ctx context.Context, queueID int64, errMsg string) error {
	return r.setTerminal(ctx, queueID, domain.StatusFailed, errMsg)
}

func (r *ProfileQueueRepo) setTerminal(ctx context.Context, queueID int64, status domain.QueueStatus, errMsg string) error {
	query := `
		UPDATE profile_queue
		SET status = $2, last_error = $3, updated_at = now()
		WHERE queue_id = $1 AND status IN ('pending', 'processing')
	`
	result, err := r.pool.Exec(ctx, query, queueID, status, errorText(errMsg))
	if err != nil {
		return fmt.Errorf("mark profile item %s: %w", status, err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// BumpAttempt увеличивает счётчик попыток, оставляя запись в pending.
func (r *ProfileQueueRepo) BumpAttempt(ctx context.Context, queueID int64, errMsg string) error {
	query := `
		UPDATE profile_queue
		SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE queue_id = $1 AND status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query, queueID, errorText(errMsg))
	if err != nil {
		return fmt.Errorf("bump profile attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ResetFailed возвращает failed-записи в pending с приоритетом RetryFailedPriority.
func (r *ProfileQueueRepo) ResetFailed(ctx context.Context) (int64, error) {
	query := `
		UPDATE profile_queue
		SET status = 'pending', attempts = 0, last_error = NULL,
		    priority = $1, updated_at = now()
		WHERE status = 'failed'
	`
	result, err := r.pool.Exec(ctx, query, RetryFailedPriority)
	if err != nil {
		return 0, fmt.Errorf("reset failed profile items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Clear удаляет записи в статусе status (пустой — все).
func (r *ProfileQueueRepo) Clear(ctx context.Context, status domain.QueueStatus) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM profile_queue WHERE ($1::text IS NULL OR status = $1)`, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("clear profile queue: %w", err)
	}
	return result.RowsAffected(), nil
}

// Remove удаляет записи по queue_id.
func (r *ProfileQueueRepo) Remove(ctx context.Context, queueIDs []int64) (int64, error) {
	if len(queueIDs) == 0 {
		return 0, nil
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM profile_queue WHERE queue_id = ANY($1)`, queueIDs)
	if err != nil {
		return 0, fmt.Errorf("remove profile items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats возвращает количество записей по статусам.
func (r *ProfileQueueRepo) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM profile_queue GROUP BY status`)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("profile queue stats: %w", err)
	}
	return collectStats(rows)
}

// CountPending возвращает количество записей в pending.
func (r *ProfileQueueRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM profile_queue WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending profile items: %w", err)
	}
	return n, nil
}

// List возвращает записи в порядке обработки.
func (r *ProfileQueueRepo) List(ctx context.Context, filter ListFilter) ([]domain.ProfileItem, error) {
	query := `
		SELECT queue_id, message_id, recipient_username, recipient_userid, status,
		       priority, attempts, last_error, created_at, updated_at
		FROM profile_queue
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY priority DESC, created_at ASC, queue_id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, statusFilter(filter.Status), filter.limit(), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list profile queue: %w", err)
	}
	defer rows.Close()

	var items []domain.ProfileItem
	for rows.Next() {
		item, err := scanProfileItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanProfileItem(row pgx.Row) (*domain.ProfileItem, error) {
	var item domain.ProfileItem
	var lastError *string

	err := row.Scan(
		&item.ID,
		&item.MessageID,
		&item.RecipientUsername,
		&item.RecipientUserID,
		&item.Status,
		&item.Priority,
		&item.Attempts,
		&lastError,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile item: %w", err)
	}
	item.LastError = deref(lastError)
	return &item, nil
}
