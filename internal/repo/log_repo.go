package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// LogFilter — параметры выборки журнала.
type LogFilter struct {
	Status domain.LogStatus
	Limit  int
	Offset int
}

func (f LogFilter) limit() int {
	return ListFilter{Limit: f.Limit}.limit()
}

// CommentLogRepo — журнал комментариев (только добавление).
type CommentLogRepo struct {
	pool *pgxpool.Pool
}

// NewCommentLogRepo создаёт новый CommentLogRepo.
func NewCommentLogRepo(pool *pgxpool.Pool) *CommentLogRepo {
	return &CommentLogRepo{pool: pool}
}

// Add добавляет запись журнала.
func (r *CommentLogRepo) Add(ctx context.Context, l *domain.CommentLog) error {
	query := `
		INSERT INTO comment_logs (message_id, deviationid, deviation_url, author_username,
		                          commentid, comment_text, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING log_id, sent_at
	`
	err := r.pool.QueryRow(ctx, query,
		l.MessageID,
		l.DeviationID,
		nullString(l.DeviationURL),
		nullString(l.AuthorUsername),
		nullString(l.CommentID),
		nullString(l.CommentText),
		l.Status,
		errorText(l.ErrorMessage),
	).Scan(&l.ID, &l.SentAt)
	if err != nil {
		return fmt.Errorf("insert comment log: %w", err)
	}
	return nil
}

// CommentedIDs возвращает те из ids, по которым уже отправлен комментарий.
func (r *CommentLogRepo) CommentedIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	done := make(map[string]bool)
	if len(ids) == 0 {
		return done, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT deviationid FROM comment_logs WHERE status = 'sent' AND deviationid = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("commented ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan commented id: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}

// List возвращает записи журнала, новые первыми.
func (r *CommentLogRepo) List(ctx context.Context, filter LogFilter) ([]domain.CommentLog, error) {
	query := `
		SELECT log_id, message_id, deviationid, deviation_url, author_username,
		       commentid, comment_text, status, error_message, sent_at
		FROM comment_logs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY sent_at DESC, log_id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, nullString(string(filter.Status)), filter.limit(), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list comment logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.CommentLog
	for rows.Next() {
		var l domain.CommentLog
		var url, author, commentID, text, errMsg *string
		if err := rows.Scan(&l.ID, &l.MessageID, &l.DeviationID, &url, &author,
			&commentID, &text, &l.Status, &errMsg, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan comment log: %w", err)
		}
		l.DeviationURL = deref(url)
		l.AuthorUsername = deref(author)
		l.CommentID = deref(commentID)
		l.CommentText = deref(text)
		l.ErrorMessage = deref(errMsg)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Stats возвращает итоги журнала комментариев.
func (r *CommentLogRepo) Stats(ctx context.Context) (domain.LogStats, error) {
	return logStats(ctx, r.pool, "comment_logs")
}

// ProfileLogRepo — журнал сообщений в профиль (только добавление).
type ProfileLogRepo struct {
	pool *pgxpool.Pool
}

// NewProfileLogRepo создаёт новый ProfileLogRepo.
func NewProfileLogRepo(pool *pgxpool.Pool) *ProfileLogRepo {
	return &ProfileLogRepo{pool: pool}
}

// Add добавляет запись журнала.
func (r *ProfileLogRepo) Add(ctx context.Context, l *domain.ProfileLog) error {
	query := `
		INSERT INTO profile_logs (message_id, recipient_username, recipient_userid,
		                          commentid, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING log_id, sent_at
	`
	err := r.pool.QueryRow(ctx, query,
		l.MessageID,
		l.RecipientUsername,
		l.RecipientUserID,
		nullString(l.CommentID),
		l.Status,
		errorText(l.ErrorMessage),
	).Scan(&l.ID, &l.SentAt)
	if err != nil {
		return fmt.Errorf("insert profile log: %w", err)
	}
	return nil
}

// ContactedIDs возвращает те из userIDs, кому уже отправлялось сообщение
// (sent или failed).
func (r *ProfileLogRepo) ContactedIDs(ctx context.Context, userIDs []string) (map[string]bool, error) {
	contacted := make(map[string]bool)
	if len(userIDs) == 0 {
		return contacted, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT recipient_userid FROM profile_logs WHERE recipient_userid = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("contacted ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contacted id: %w", err)
		}
		contacted[id] = true
	}
	return contacted, rows.Err()
}

// List возвращает записи журнала, новые первыми.
func (r *ProfileLogRepo) List(ctx context.Context, filter LogFilter) ([]domain.ProfileLog, error) {
	query := `
		SELECT log_id, message_id, recipient_username, recipient_userid,
		       commentid, status, error_message, sent_at
		FROM profile_logs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY sent_at DESC, log_id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, nullString(string(filter.Status)), filter.limit(), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list profile logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.ProfileLog
	for rows.Next() {
		var l domain.ProfileLog
		var commentID, errMsg *string
		if err := rows.Scan(&l.ID, &l.MessageID, &l.RecipientUsername, &l.RecipientUserID,
			&commentID, &l.Status, &errMsg, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan profile log: %w", err)
		}
		l.CommentID = deref(commentID)
		l.ErrorMessage = deref(errMsg)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Stats возвращает итоги журнала сообщений.
func (r *ProfileLogRepo) Stats(ctx context.Context) (domain.LogStats, error) {
	return logStats(ctx, r.pool, "profile_logs")
}

func logStats(ctx context.Context, pool *pgxpool.Pool, table string) (domain.LogStats, error) {
	query := `
		SELECT count(*) FILTER (WHERE status = 'sent'),
		       count(*) FILTER (WHERE status = 'failed'),
		       count(*) FILTER (WHERE status = 'deleted'),
		       count(*)
		FROM ` + table
	var s domain.LogStats
	if err := pool.QueryRow(ctx, query).Scan(&s.Sent, &s.Failed, &s.Deleted, &s.Total); err != nil {
		return s, fmt.Errorf("%s stats: %w", table, err)
	}
	return s, nil
}
