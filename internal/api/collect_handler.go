package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Deviart/internal/control"
)

// runAction выполняет разовое действие фичи через Dispatcher.
func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, feature string, action control.Action, args map[string]string) {
	res, err := h.control.Run(r.Context(), feature, action, args)
	if HandleError(w, h.logger, err) {
		return
	}
	Done(w, feature+" "+string(action)+" completed", res)
}

func setPositive(args map[string]string, key string, v int) {
	if v > 0 {
		args[key] = strconv.Itoa(v)
	}
}

// CollectComments собирает работы в очередь комментариев.
// POST /api/comments/collect
func (h *Handler) CollectComments(w http.ResponseWriter, r *http.Request) {
	var req CommentsCollectRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	args := map[string]string{"source": req.Source}
	setPositive(args, "max_pages", req.MaxPages)
	h.runAction(w, r, "comments", control.ActionCollect, args)
}

// CollectFeed собирает ленту в очередь избранного.
// POST /api/fave/collect
func (h *Handler) CollectFeed(w http.ResponseWriter, r *http.Request) {
	var req FaveCollectRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	args := map[string]string{}
	setPositive(args, "max_pages", req.MaxPages)
	h.runAction(w, r, "fave", control.ActionCollect, args)
}

// FetchWatchers загружает наблюдателей аккаунта.
// POST /api/broadcast/watchers/fetch
func (h *Handler) FetchWatchers(w http.ResponseWriter, r *http.Request) {
	var req FetchWatchersRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	args := map[string]string{"username": req.Username}
	setPositive(args, "max_watchers", req.MaxWatchers)
	h.runAction(w, r, "broadcast", control.ActionFetch, args)
}

// SyncStats синхронно обновляет статистику галереи.
// POST /api/stats/sync
func (h *Handler) SyncStats(w http.ResponseWriter, r *http.Request) {
	var req StatsSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	h.runAction(w, r, "stats", control.ActionSync, map[string]string{"username": req.Username})
}
