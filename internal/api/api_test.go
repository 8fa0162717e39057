package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Deviart/internal/auth"
	"github.com/shaiso/Deviart/internal/broadcast"
	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/worker"
)

// --- Fakes ---

type fakeAuth struct{}

func (fakeAuth) EnsureAuthenticated(context.Context) error  { return nil }
func (fakeAuth) ValidToken(context.Context) (string, error) { return "tok", nil }
func (fakeAuth) Refresh(context.Context) (string, error)    { return "tok", nil }

type fakeController struct {
	name    string
	running bool
	params  map[string]string
}

func (c *fakeController) Name() string { return c.name }

func (c *fakeController) Start(_ context.Context, opts worker.StartOptions) error {
	if c.running {
		return worker.ErrAlreadyRunning
	}
	c.running = true
	c.params = opts.Params
	return nil
}

func (c *fakeController) Stop() (worker.StopResult, error) {
	if !c.running {
		return worker.StopResult{}, worker.ErrNotRunning
	}
	c.running = false
	return worker.StopResult{Stopped: true, Message: "worker stopped"}, nil
}

func (c *fakeController) Status(context.Context) worker.Status {
	return worker.Status{
		Feature: c.name,
		Stats:   worker.Stats{Running: c.running, Processed: 3},
		Extra:   map[string]any{"queue_remaining": 7},
	}
}

func (c *fakeController) Running() bool { return c.running }

type memQueue struct {
	items   []domain.CommentItem
	cleared domain.QueueStatus
	removed []string
}

func (q *memQueue) List(_ context.Context, f repo.ListFilter) ([]domain.CommentItem, error) {
	var out []domain.CommentItem
	for _, it := range q.items {
		if f.Status == "" || it.Status == f.Status {
			out = append(out, it)
		}
	}
	return out, nil
}

func (q *memQueue) Stats(context.Context) (domain.QueueStats, error) {
	return domain.QueueStats{Total: len(q.items)}, nil
}

func (q *memQueue) Clear(_ context.Context, status domain.QueueStatus) (int64, error) {
	q.cleared = status
	return int64(len(q.items)), nil
}

func (q *memQueue) ResetFailed(context.Context) (int64, error) { return 1, nil }

func (q *memQueue) Remove(_ context.Context, keys []string) (int64, error) {
	q.removed = keys
	return int64(len(keys)), nil
}

type memProfileQueue struct {
	removed []int64
}

func (q *memProfileQueue) List(context.Context, repo.ListFilter) ([]domain.ProfileItem, error) {
	return nil, nil
}
func (q *memProfileQueue) Stats(context.Context) (domain.QueueStats, error) {
	return domain.QueueStats{}, nil
}
func (q *memProfileQueue) Clear(context.Context, domain.QueueStatus) (int64, error) { return 0, nil }
func (q *memProfileQueue) ResetFailed(context.Context) (int64, error)               { return 0, nil }
func (q *memProfileQueue) Remove(_ context.Context, ids []int64) (int64, error) {
	q.removed = ids
	return int64(len(ids)), nil
}

type memTemplates struct {
	items  map[int64]*domain.Template
	nextID int64
}

func newMemTemplates() *memTemplates {
	return &memTemplates{items: make(map[int64]*domain.Template)}
}

func (m *memTemplates) List(context.Context) ([]domain.Template, error) {
	var out []domain.Template
	for _, t := range m.items {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTemplates) GetByID(_ context.Context, id int64) (*domain.Template, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) Create(_ context.Context, t *domain.Template) error {
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *memTemplates) Update(_ context.Context, t *domain.Template) error {
	if _, ok := m.items[t.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *memTemplates) Delete(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type fakeCommentLogs struct{}

func (fakeCommentLogs) List(_ context.Context, f repo.LogFilter) ([]domain.CommentLog, error) {
	return []domain.CommentLog{{ID: 1, DeviationID: "d1", Status: domain.LogSent}}, nil
}
func (fakeCommentLogs) Stats(context.Context) (domain.LogStats, error) {
	return domain.LogStats{Sent: 1, Total: 1}, nil
}

type fakeProfileLogs struct{}

func (fakeProfileLogs) List(context.Context, repo.LogFilter) ([]domain.ProfileLog, error) {
	return nil, nil
}
func (fakeProfileLogs) Stats(context.Context) (domain.LogStats, error) {
	return domain.LogStats{}, nil
}

type fakeBroadcaster struct {
	messageID  int64
	recipients []domain.Recipient
}

func (b *fakeBroadcaster) Enqueue(_ context.Context, messageID int64, recipients []domain.Recipient) (*broadcast.EnqueueResult, error) {
	b.messageID, b.recipients = messageID, recipients
	return &broadcast.EnqueueResult{Added: int64(len(recipients)), RecipientsSeen: len(recipients)}, nil
}

func (b *fakeBroadcaster) RetryFailed(context.Context) (int64, error) { return 2, nil }

type fakeAuthorizer struct {
	code string
}

func (a *fakeAuthorizer) AuthCodeURL(state string) string {
	return "https://auth.example/authorize?state=" + state
}

func (a *fakeAuthorizer) Exchange(_ context.Context, code string) error {
	a.code = code
	return nil
}

func (a *fakeAuthorizer) Status(context.Context) (*auth.Status, error) {
	return &auth.Status{Authenticated: true}, nil
}

// --- Helpers ---

type testEnv struct {
	mux        *http.ServeMux
	dispatcher *control.Dispatcher
	comments   *fakeController
	queue      *memQueue
	profileQ   *memProfileQueue
	templates  *memTemplates
	bc         *fakeBroadcaster
	authz      *fakeAuthorizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	comments := &fakeController{name: "comments"}
	reg := worker.NewRegistry()
	reg.Register(comments)
	d := control.New(control.Config{Registry: reg, Auth: fakeAuth{}})

	env := &testEnv{
		mux:        http.NewServeMux(),
		dispatcher: d,
		comments:   comments,
		queue:      &memQueue{items: []domain.CommentItem{{DeviationID: "d1", Status: domain.StatusPending}, {DeviationID: "d2", Status: domain.StatusFailed}}},
		profileQ:   &memProfileQueue{},
		templates:  newMemTemplates(),
		bc:         &fakeBroadcaster{},
		authz:      &fakeAuthorizer{},
	}

	h := NewHandler(Config{
		Control: d,
		Queues: map[string]QueueAdmin{
			"comments":  CommentQueue(env.queue),
			"broadcast": ProfileQueue(env.profileQ),
		},
		CommentTemplates: env.templates,
		ProfileTemplates: newMemTemplates(),
		CommentLogs:      fakeCommentLogs{},
		ProfileLogs:      fakeProfileLogs{},
		Broadcaster:      env.bc,
		Auth:             env.authz,
	})
	h.RegisterRoutes(env.mux)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

// --- Workers ---

func TestWorkerLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, "POST", "/api/comments/worker/start", `{"template_id": 5}`)
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("start: %d %v", rec.Code, body)
	}
	if env.comments.params["template_id"] != "5" {
		t.Errorf("params = %v", env.comments.params)
	}

	// Повторный запуск — 400
	rec, body = env.do(t, "POST", "/api/comments/worker/start", "")
	if rec.Code != http.StatusBadRequest || body["success"] != false || body["error"] == "" {
		t.Errorf("second start: %d %v", rec.Code, body)
	}

	rec, body = env.do(t, "GET", "/api/comments/worker/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["running"] != true || data["queue_remaining"] != float64(7) {
		t.Errorf("status data = %v", data)
	}

	rec, body = env.do(t, "POST", "/api/comments/worker/stop", "")
	if rec.Code != http.StatusOK || body["stopped"] != true {
		t.Errorf("stop: %d %v", rec.Code, body)
	}

	// Остановка незапущенного — 400
	rec, _ = env.do(t, "POST", "/api/comments/worker/stop", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second stop: %d", rec.Code)
	}
}

func TestWorkerUnknownFeature(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, "POST", "/api/uploads/worker/start", "")
	if rec.Code != http.StatusNotFound || body["success"] != false {
		t.Errorf("got %d %v", rec.Code, body)
	}
}

func TestWorkerStartWithoutAuth(t *testing.T) {
	reg := worker.NewRegistry()
	reg.Register(&fakeController{name: "fave"})
	h := NewHandler(Config{Control: control.New(control.Config{Registry: reg})})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/fave/worker/start", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", rec.Code)
	}
}

func TestWorkersStatus(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, "GET", "/api/workers", "")
	if rec.Code != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("got %d %v", rec.Code, body)
	}
}

// --- Queues ---

func TestQueueEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, "GET", "/api/comments/queue?status=failed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if items := body["data"].([]any); len(items) != 1 {
		t.Errorf("items = %v", items)
	}

	rec, _ = env.do(t, "GET", "/api/comments/queue?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: %d", rec.Code)
	}

	rec, _ = env.do(t, "POST", "/api/comments/queue/clear", `{"status":"failed"}`)
	if rec.Code != http.StatusOK || env.queue.cleared != domain.StatusFailed {
		t.Errorf("clear: %d, cleared %q", rec.Code, env.queue.cleared)
	}

	rec, body = env.do(t, "POST", "/api/comments/queue/remove", `{"keys":["d1","d2"]}`)
	if rec.Code != http.StatusOK || len(env.queue.removed) != 2 {
		t.Errorf("remove: %d %v", rec.Code, body)
	}

	rec, _ = env.do(t, "POST", "/api/comments/queue/remove", `{"keys":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty keys: %d", rec.Code)
	}

	rec, _ = env.do(t, "GET", "/api/stats/queue", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("stats has no queue: %d", rec.Code)
	}
}

func TestProfileQueueRemoveParsesIDs(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, "POST", "/api/broadcast/queue/remove", `{"keys":["12","13"]}`)
	if rec.Code != http.StatusOK || len(env.profileQ.removed) != 2 || env.profileQ.removed[0] != 12 {
		t.Errorf("remove: %d %v", rec.Code, env.profileQ.removed)
	}

	rec, _ = env.do(t, "POST", "/api/broadcast/queue/remove", `{"keys":["abc"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: %d", rec.Code)
	}
}

func TestBroadcastEnqueue(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, "POST", "/api/broadcast/queue/add",
		`{"message_id": 3, "recipients": [{"username":"alice","userid":"u1"}]}`)
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("add: %d %v", rec.Code, body)
	}
	if env.bc.messageID != 3 || len(env.bc.recipients) != 1 || env.bc.recipients[0].UserID != "u1" {
		t.Errorf("enqueued %d %v", env.bc.messageID, env.bc.recipients)
	}

	rec, _ = env.do(t, "POST", "/api/broadcast/queue/add", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing message_id: %d", rec.Code)
	}

	rec, body = env.do(t, "POST", "/api/broadcast/queue/retry-failed", "")
	if rec.Code != http.StatusOK || body["data"].(map[string]any)["count"] != float64(2) {
		t.Errorf("retry-failed: %d %v", rec.Code, body)
	}
}

// --- Templates ---

func TestTemplateCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, "POST", "/api/comments/templates", `{"title":"t","body":"{Hi|Hello"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid template: %d", rec.Code)
	}

	rec, body := env.do(t, "POST", "/api/comments/templates", `{"title":"greeting","body":"{Hi|Hello} there"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %v", rec.Code, body)
	}
	created := body["data"].(map[string]any)
	if created["is_active"] != true {
		t.Errorf("новый шаблон должен быть активным: %v", created)
	}

	rec, body = env.do(t, "PUT", "/api/comments/templates/1", `{"is_active": false}`)
	if rec.Code != http.StatusOK || body["data"].(map[string]any)["is_active"] != false {
		t.Errorf("update: %d %v", rec.Code, body)
	}
	if env.templates.items[1].Body != "{Hi|Hello} there" {
		t.Errorf("body changed: %q", env.templates.items[1].Body)
	}

	rec, _ = env.do(t, "DELETE", "/api/comments/templates/1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
	rec, _ = env.do(t, "DELETE", "/api/comments/templates/1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: %d", rec.Code)
	}

	rec, _ = env.do(t, "GET", "/api/fave/templates", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("fave has no templates: %d", rec.Code)
	}
}

// --- Collectors ---

func TestCollectUsesDispatcher(t *testing.T) {
	env := newTestEnv(t)

	var got map[string]string
	env.dispatcher.Handle("comments", control.ActionCollect, func(_ context.Context, token string, args map[string]string) (any, error) {
		got = args
		return map[string]int{"deviations_added": 4}, nil
	})

	rec, body := env.do(t, "POST", "/api/comments/collect", `{"source":"global","max_pages":2}`)
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("collect: %d %v", rec.Code, body)
	}
	if got["source"] != "global" || got["max_pages"] != "2" {
		t.Errorf("args = %v", got)
	}
}

func TestCollectErrors(t *testing.T) {
	env := newTestEnv(t)

	env.dispatcher.Handle("fave", control.ActionCollect, func(context.Context, string, map[string]string) (any, error) {
		return nil, worker.Preconditionf("invalid max_pages")
	})
	env.dispatcher.Handle("stats", control.ActionSync, func(context.Context, string, map[string]string) (any, error) {
		return nil, errors.New("gallery unavailable")
	})

	rec, _ := env.do(t, "POST", "/api/fave/collect", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("precondition: %d", rec.Code)
	}

	rec, body := env.do(t, "POST", "/api/stats/sync", "")
	if rec.Code != http.StatusInternalServerError || body["error"] != "gallery unavailable" {
		t.Errorf("sync: %d %v", rec.Code, body)
	}

	// Действие не зарегистрировано
	rec, _ = env.do(t, "POST", "/api/broadcast/watchers/fetch", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action: %d", rec.Code)
	}
}

// --- Logs ---

func TestCommentLogs(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, "GET", "/api/comments/logs?status=sent&limit=10", "")
	if rec.Code != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("logs: %d %v", rec.Code, body)
	}

	rec, _ = env.do(t, "GET", "/api/comments/logs?status=lost", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: %d", rec.Code)
	}

	rec, _ = env.do(t, "GET", "/api/comments/logs?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", rec.Code)
	}
}

// --- Auth ---

func TestOAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, "GET", "/auth/login", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("login: %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != stateCookie {
		t.Fatalf("cookies = %v", cookies)
	}
	state := cookies[0].Value
	if !strings.HasSuffix(rec.Header().Get("Location"), "state="+state) {
		t.Errorf("location = %q", rec.Header().Get("Location"))
	}

	// Неверный state
	req := httptest.NewRequest("GET", "/auth/callback?code=abc&state=other", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || env.authz.code != "" {
		t.Errorf("state mismatch: %d, code %q", rec.Code, env.authz.code)
	}

	req = httptest.NewRequest("GET", "/auth/callback?code=abc&state="+state, nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound || env.authz.code != "abc" {
		t.Errorf("callback: %d, code %q", rec.Code, env.authz.code)
	}
}

// --- Middleware ---

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, "GET", "/api/workers", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("X-Request-ID должен выставляться")
	}

	req := httptest.NewRequest("GET", "/api/workers", nil)
	req.Header.Set(RequestIDHeader, "7f9c24e8-3b12-4fef-91e0-3a9a7e3a6a10")
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "7f9c24e8-3b12-4fef-91e0-3a9a7e3a6a10" {
		t.Errorf("request id = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), []string{"*"}, 1, time.Minute)

	codes := make([]int, 0, 2)
	for range 2 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/workers", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}
