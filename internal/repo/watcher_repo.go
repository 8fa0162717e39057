package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// WatcherRepo — наблюдатели аккаунта.
type WatcherRepo struct {
	pool *pgxpool.Pool
}

// NewWatcherRepo создаёт новый WatcherRepo.
func NewWatcherRepo(pool *pgxpool.Pool) *WatcherRepo {
	return &WatcherRepo{pool: pool}
}

// Upsert добавляет наблюдателей или обновляет их userid и время загрузки.
func (r *WatcherRepo) Upsert(ctx context.Context, watchers []domain.Recipient) error {
	if len(watchers) == 0 {
		return nil
	}
	query := `
		INSERT INTO watchers (username, userid) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET userid = EXCLUDED.userid, fetched_at = now()
	`
	batch := &pgx.Batch{}
	for _, w := range watchers {
		batch.Queue(query, w.Username, w.UserID)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert watchers: %w", err)
	}
	return nil
}

// List возвращает наблюдателей, последние загруженные первыми.
func (r *WatcherRepo) List(ctx context.Context, limit int) ([]domain.Watcher, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT watcher_id, username, userid, fetched_at
		FROM watchers
		ORDER BY fetched_at DESC, watcher_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list watchers: %w", err)
	}
	defer rows.Close()

	var watchers []domain.Watcher
	for rows.Next() {
		var w domain.Watcher
		if err := rows.Scan(&w.ID, &w.Username, &w.UserID, &w.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan watcher: %w", err)
		}
		watchers = append(watchers, w)
	}
	return watchers, rows.Err()
}

// Count возвращает количество наблюдателей.
func (r *WatcherRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM watchers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count watchers: %w", err)
	}
	return n, nil
}

// DeleteNotIn удаляет наблюдателей, которых нет в usernames (отписавшихся).
// Пустой список ничего не удаляет.
func (r *WatcherRepo) DeleteNotIn(ctx context.Context, usernames []string) (int64, error) {
	if len(usernames) == 0 {
		return 0, nil
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM watchers WHERE NOT (username = ANY($1))`, usernames)
	if err != nil {
		return 0, fmt.Errorf("prune watchers: %w", err)
	}
	return result.RowsAffected(), nil
}
