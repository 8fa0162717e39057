package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ключи состояния сборщиков.
const (
	StateFeedOffset          = "feed_offset"
	StateCommentWatchOffset  = "comment_watch_offset"
	StateCommentGlobalOffset = "comment_global_offset"
)

// StateRepo — key-value состояние сборщиков (offset'ы пагинации).
type StateRepo struct {
	pool *pgxpool.Pool
}

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// Get возвращает значение ключа или ErrNotFound.
func (r *StateRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM collector_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// Set сохраняет значение ключа.
func (r *StateRepo) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO collector_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Offset возвращает сохранённый offset; отсутствующий или битый — 0.
func (r *StateRepo) Offset(ctx context.Context, key string) (int, error) {
	value, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// SetOffset сохраняет offset.
func (r *StateRepo) SetOffset(ctx context.Context, key string, offset int) error {
	return r.Set(ctx, key, strconv.Itoa(offset))
}
