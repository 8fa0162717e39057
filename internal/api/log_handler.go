package api

import (
	"fmt"
	"net/http"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
)

func logFilter(r *http.Request) (repo.LogFilter, error) {
	limit, offset, err := parsePage(r)
	if err != nil {
		return repo.LogFilter{}, err
	}
	f := repo.LogFilter{Limit: limit, Offset: offset}

	switch s := domain.LogStatus(r.URL.Query().Get("status")); s {
	case "":
	case domain.LogSent, domain.LogFailed, domain.LogDeleted:
		f.Status = s
	default:
		return repo.LogFilter{}, fmt.Errorf("invalid status %q", s)
	}
	return f, nil
}

// CommentLogs возвращает журнал комментариев.
// GET /api/comments/logs?status=&limit=&offset=
func (h *Handler) CommentLogs(w http.ResponseWriter, r *http.Request) {
	f, err := logFilter(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	logs, err := h.commentLogs.List(r.Context(), f)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, logs, len(logs))
}

// CommentLogStats возвращает итоги журнала комментариев.
// GET /api/comments/logs/stats
func (h *Handler) CommentLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.commentLogs.Stats(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, stats)
}

// BroadcastLogs возвращает журнал рассылки.
// GET /api/broadcast/logs?status=&limit=&offset=
func (h *Handler) BroadcastLogs(w http.ResponseWriter, r *http.Request) {
	f, err := logFilter(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	logs, err := h.profileLogs.List(r.Context(), f)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, logs, len(logs))
}

// BroadcastLogStats возвращает итоги журнала рассылки.
// GET /api/broadcast/logs/stats
func (h *Handler) BroadcastLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.profileLogs.Stats(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, stats)
}
