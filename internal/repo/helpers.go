package repo

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
)

// maxErrorLen — предел длины last_error/error_message.
const maxErrorLen = 500

// errorText обрезает текст ошибки до maxErrorLen.
func errorText(msg string) *string {
	if msg == "" {
		return nil
	}
	s := httpclient.Truncate(msg, maxErrorLen)
	return &s
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// deref возвращает значение или пустую строку для NULL.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// statusFilter возвращает nil для пустого статуса (все статусы).
func statusFilter(s domain.QueueStatus) *string {
	return nullString(string(s))
}

// collectStats собирает QueueStats из строк (status, count).
func collectStats(rows pgx.Rows) (domain.QueueStats, error) {
	defer rows.Close()

	stats := domain.QueueStats{ByStatus: make(map[domain.QueueStatus]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByStatus[domain.QueueStatus(status)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// ListFilter — параметры выборки очередей и журналов.
type ListFilter struct {
	Status domain.QueueStatus
	Limit  int
	Offset int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 100
	}
	return f.Limit
}
