package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// TemplateRepo — шаблоны сообщений. Одна реализация обслуживает
// comment_templates и profile_templates.
type TemplateRepo struct {
	pool  *pgxpool.Pool
	table string
}

// NewCommentTemplateRepo создаёт репозиторий шаблонов комментариев.
func NewCommentTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool, table: "comment_templates"}
}

// NewProfileTemplateRepo создаёт репозиторий шаблонов сообщений в профиль.
func NewProfileTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool, table: "profile_templates"}
}

// Create создаёт шаблон и заполняет ID и время.
func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	query := `
		INSERT INTO ` + r.table + ` (title, body, is_active)
		VALUES ($1, $2, $3)
		RETURNING message_id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, t.Title, t.Body, t.IsActive).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetByID возвращает шаблон по ID.
func (r *TemplateRepo) GetByID(ctx context.Context, id int64) (*domain.Template, error) {
	query := `
		SELECT message_id, title, body, is_active, created_at, updated_at
		FROM ` + r.table + `
		WHERE message_id = $1
	`
	return scanTemplate(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все шаблоны, новые первыми.
func (r *TemplateRepo) List(ctx context.Context) ([]domain.Template, error) {
	return r.list(ctx, false)
}

// ListActive возвращает только активные шаблоны.
func (r *TemplateRepo) ListActive(ctx context.Context) ([]domain.Template, error) {
	return r.list(ctx, true)
}

func (r *TemplateRepo) list(ctx context.Context, activeOnly bool) ([]domain.Template, error) {
	query := `
		SELECT message_id, title, body, is_active, created_at, updated_at
		FROM ` + r.table + `
		WHERE (NOT $1 OR is_active)
		ORDER BY created_at DESC, message_id DESC
	`
	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// CountActive возвращает количество активных шаблонов.
func (r *TemplateRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM `+r.table+` WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active templates: %w", err)
	}
	return n, nil
}

// Update обновляет заголовок, текст и активность шаблона.
func (r *TemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	query := `
		UPDATE ` + r.table + `
		SET title = $2, body = $3, is_active = $4, updated_at = now()
		WHERE message_id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query, t.ID, t.Title, t.Body, t.IsActive).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// Delete удаляет шаблон.
func (r *TemplateRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE message_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	err := row.Scan(&t.ID, &t.Title, &t.Body, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &t, nil
}
