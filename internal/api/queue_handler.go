package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
)

// queue возвращает очередь фичи из пути или пишет 404.
func (h *Handler) queue(w http.ResponseWriter, r *http.Request) (QueueAdmin, bool) {
	feature := r.PathValue("feature")
	q, ok := h.queues[feature]
	if !ok {
		NotFound(w, fmt.Sprintf("feature %q has no queue", feature))
		return nil, false
	}
	return q, true
}

// parseStatus разбирает статус очереди; пустая строка — любой статус.
func parseStatus(s string) (domain.QueueStatus, error) {
	if s == "" {
		return "", nil
	}
	status, ok := domain.ParseQueueStatus(s)
	if !ok {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return status, nil
}

// parsePage разбирает limit и offset из query.
func parsePage(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
	}
	return limit, offset, nil
}

// ListQueue возвращает элементы очереди.
// GET /api/{feature}/queue?status=&limit=&offset=
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queue(w, r)
	if !ok {
		return
	}

	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	items, err := q.List(r.Context(), repo.ListFilter{Status: status, Limit: limit, Offset: offset})
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, items)
}

// QueueStats возвращает количество элементов по статусам.
// GET /api/{feature}/queue/stats
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queue(w, r)
	if !ok {
		return
	}
	stats, err := q.Stats(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, stats)
}

// ClearQueue удаляет элементы в статусе (пустой — все).
// POST /api/{feature}/queue/clear
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queue(w, r)
	if !ok {
		return
	}

	var req ClearQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	n, err := q.Clear(r.Context(), status)
	if HandleError(w, h.logger, err) {
		return
	}
	Done(w, fmt.Sprintf("removed %d items", n), CountResponse{Count: n})
}

// ResetFailed возвращает failed-элементы в pending.
// POST /api/{feature}/queue/reset-failed
func (h *Handler) ResetFailed(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queue(w, r)
	if !ok {
		return
	}
	n, err := q.ResetFailed(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Done(w, fmt.Sprintf("reset %d failed items", n), CountResponse{Count: n})
}

// RemoveFromQueue удаляет элементы по ключам.
// POST /api/{feature}/queue/remove
func (h *Handler) RemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queue(w, r)
	if !ok {
		return
	}

	var req RemoveFromQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if len(req.Keys) == 0 {
		BadRequest(w, "keys are required")
		return
	}

	n, err := q.Remove(r.Context(), req.Keys)
	if HandleError(w, h.logger, err) {
		return
	}
	Done(w, fmt.Sprintf("removed %d items", n), CountResponse{Count: n})
}

// EnqueueBroadcast ставит получателей в очередь рассылки.
// POST /api/broadcast/queue/add
func (h *Handler) EnqueueBroadcast(w http.ResponseWriter, r *http.Request) {
	var req EnqueueBroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.MessageID <= 0 {
		BadRequest(w, "message_id is required")
		return
	}

	res, err := h.broadcaster.Enqueue(r.Context(), req.MessageID, req.Recipients)
	if HandleError(w, h.logger, err) {
		return
	}
	Done(w, fmt.Sprintf("added %d recipients", res.Added), res)
}

// RetryFailedBroadcast возвращает failed-получателей в очередь с приоритетом.
// POST /api/broadcast/queue/retry-failed
func (h *Handler) RetryFailedBroadcast(w http.ResponseWriter, r *http.Request) {
	n, err := h.broadcaster.RetryFailed(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Done(w, fmt.Sprintf("requeued %d recipients", n), CountResponse{Count: n})
}
