package api

import (
	"net/http"
	"strconv"
)

// StartWorker запускает воркер фичи.
// POST /api/{feature}/worker/start
func (h *Handler) StartWorker(w http.ResponseWriter, r *http.Request) {
	feature := r.PathValue("feature")

	var req StartWorkerRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if HandleError(w, h.logger, h.control.Start(r.Context(), feature, req.params())) {
		return
	}
	Done(w, feature+" worker started", nil)
}

// StopWorker останавливает воркер фичи.
// POST /api/{feature}/worker/stop
func (h *Handler) StopWorker(w http.ResponseWriter, r *http.Request) {
	res, err := h.control.Stop(r.PathValue("feature"))
	if HandleError(w, h.logger, err) {
		return
	}
	JSON(w, http.StatusOK, StopWorkerResponse{Success: true, Message: res.Message, Stopped: res.Stopped})
}

// WorkerStatus возвращает статус воркера фичи.
// GET /api/{feature}/worker/status
func (h *Handler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.control.Status(r.Context(), r.PathValue("feature"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, st)
}

// WorkersStatus возвращает статусы всех воркеров.
// GET /api/workers
func (h *Handler) WorkersStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.control.StatusAll(r.Context())
	List(w, statuses, len(statuses))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
