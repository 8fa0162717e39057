package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/worker"
)

type testEnv struct {
	api    *fakeAPI
	queue  *memQueue
	logs   *memLogs
	poster *Poster
	worker *worker.Worker[Job]
}

func newTestEnv(api *fakeAPI, templates memTemplates, items ...domain.CommentItem) *testEnv {
	env := &testEnv{api: api, queue: newMemQueue(items...), logs: &memLogs{}}
	env.poster = NewPoster(PosterConfig{
		API:       api,
		Queue:     env.queue,
		Logs:      env.logs,
		Templates: templates,
	})
	env.worker = worker.New(worker.Config[Job]{
		Feature: env.poster,
		Options: worker.Options{
			IdleDelay:       time.Millisecond,
			MaxAttempts:     MaxAttempts,
			StopWhenDrained: true,
		},
	})
	return env
}

func (e *testEnv) run(t *testing.T, params map[string]string) worker.Status {
	t.Helper()
	if err := e.worker.Start(context.Background(), worker.StartOptions{Token: "tok", Params: params}); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.worker.Running() {
		if time.Now().After(deadline) {
			t.Fatal("worker did not stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return e.worker.Status(context.Background())
}

var activeTemplate = memTemplates{{ID: 7, Body: "{Nice|Great} work!", IsActive: true}}

func TestPoster_Validate(t *testing.T) {
	ctx := context.Background()
	item := domain.CommentItem{DeviationID: "d1"}
	templates := memTemplates{
		{ID: 1, Body: "hi", IsActive: true},
		{ID: 2, Body: "off", IsActive: false},
	}

	tests := []struct {
		name      string
		templates memTemplates
		items     []domain.CommentItem
		params    map[string]string
		wantErr   bool
	}{
		{"ok", templates, []domain.CommentItem{item}, nil, false},
		{"explicit template", templates, []domain.CommentItem{item}, map[string]string{"template_id": "1"}, false},
		{"empty queue", templates, nil, nil, true},
		{"no active templates", memTemplates{{ID: 2, IsActive: false}}, []domain.CommentItem{item}, nil, true},
		{"inactive template", templates, []domain.CommentItem{item}, map[string]string{"template_id": "2"}, true},
		{"unknown template", templates, []domain.CommentItem{item}, map[string]string{"template_id": "9"}, true},
		{"bad template id", templates, []domain.CommentItem{item}, map[string]string{"template_id": "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoster(PosterConfig{Queue: newMemQueue(tt.items...), Templates: tt.templates})
			err := p.Validate(ctx, worker.StartOptions{Params: tt.params})
			if tt.wantErr {
				if !errors.Is(err, worker.ErrPrecondition) {
					t.Errorf("expected ErrPrecondition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPoster_CommentsAndFaves(t *testing.T) {
	api := &fakeAPI{}
	env := newTestEnv(api, activeTemplate,
		domain.CommentItem{DeviationID: "d1", Ts: 1, AuthorUsername: "alice"},
		domain.CommentItem{DeviationID: "d2", Ts: 2},
	)

	status := env.run(t, nil)

	if status.Processed != 2 || status.Errors != 0 || status.StopReason != worker.ReasonDrained {
		t.Errorf("unexpected status %+v", status.Stats)
	}
	for _, id := range []string{"d1", "d2"} {
		it, _ := env.queue.get(id)
		if it.Status != domain.StatusCommented {
			t.Errorf("%s: expected commented, got %s", id, it.Status)
		}
		body := api.posted[id]
		if body != "Nice work!" && body != "Great work!" {
			t.Errorf("%s: unexpected comment %q", id, body)
		}
	}
	if len(api.faved) != 2 {
		t.Errorf("expected 2 faves, got %v", api.faved)
	}

	sent := env.logs.byStatus(domain.LogSent)
	if len(sent) != 2 {
		t.Fatalf("expected 2 sent logs, got %d", len(sent))
	}
	// Новые работы обрабатываются первыми
	if sent[0].DeviationID != "d2" || sent[0].CommentID != "c-d2" || *sent[0].MessageID != 7 {
		t.Errorf("unexpected first log %+v", sent[0])
	}
}

func TestPoster_MarkCommentedFailureNoRepost(t *testing.T) {
	api := &fakeAPI{}
	env := newTestEnv(api, activeTemplate,
		domain.CommentItem{DeviationID: "d1", Ts: 1},
		domain.CommentItem{DeviationID: "d2", Ts: 2},
	)
	env.queue.markErr = errors.New("db unavailable")

	status := env.run(t, nil)

	// Комментарий опубликован один раз, воркер остановлен
	if api.calls() != 1 {
		t.Errorf("expected exactly 1 post, got %d", api.calls())
	}
	if status.StopReason != worker.ReasonPersistFailed || status.Processed != 0 || status.Errors != 1 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
	if it, _ := env.queue.get("d2"); it.Status != domain.StatusPending {
		t.Errorf("expected d2 to stay pending, got %s", it.Status)
	}
}

func TestPoster_FaveFailureKeepsSuccess(t *testing.T) {
	api := &fakeAPI{faveErr: httpclient.NewAPIError(403, []byte(`{"error":"forbidden"}`))}
	env := newTestEnv(api, activeTemplate, domain.CommentItem{DeviationID: "d1"})

	status := env.run(t, nil)

	if status.Processed != 1 || status.Errors != 0 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
	if it, _ := env.queue.get("d1"); it.Status != domain.StatusCommented {
		t.Errorf("expected commented, got %s", it.Status)
	}
}

func TestPoster_DeletedDeviationRemoved(t *testing.T) {
	api := &fakeAPI{missing: map[string]error{
		"gone": httpclient.NewAPIError(404, []byte(`{"error":"not_found"}`)),
		"err":  httpclient.NewAPIError(500, []byte(`{"error":"server_error"}`)),
	}}
	env := newTestEnv(api, activeTemplate,
		domain.CommentItem{DeviationID: "gone", Ts: 3},
		domain.CommentItem{DeviationID: "err", Ts: 2},
		domain.CommentItem{DeviationID: "ok", Ts: 1},
	)

	status := env.run(t, nil)

	if status.Processed != 1 || status.Errors != 0 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
	for _, id := range []string{"gone", "err"} {
		if _, ok := env.queue.get(id); ok {
			t.Errorf("%s should be removed from queue", id)
		}
	}
	if deleted := env.logs.byStatus(domain.LogDeleted); len(deleted) != 2 {
		t.Errorf("expected 2 deleted logs, got %d", len(deleted))
	}
	if api.calls() != 1 {
		t.Errorf("expected 1 post, got %d", api.calls())
	}
}

func TestPoster_MaxAttempts(t *testing.T) {
	api := &fakeAPI{postErr: func(string) error { return errNetwork }}
	env := newTestEnv(api, activeTemplate, domain.CommentItem{DeviationID: "d1"})

	status := env.run(t, nil)

	// Две попытки с bump, третья переводит в failed
	if api.calls() != MaxAttempts {
		t.Errorf("expected %d calls, got %d", MaxAttempts, api.calls())
	}
	it, _ := env.queue.get("d1")
	if it.Status != domain.StatusFailed || it.Attempts != 2 {
		t.Errorf("unexpected item %+v", it)
	}
	if status.Errors != MaxAttempts || status.Processed != 0 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
	if failed := env.logs.byStatus(domain.LogFailed); len(failed) != MaxAttempts {
		t.Errorf("expected %d failed logs, got %d", MaxAttempts, len(failed))
	}
}

func TestPoster_NonRetryableFailsImmediately(t *testing.T) {
	api := &fakeAPI{postErr: func(id string) error {
		if id == "bad" {
			return httpclient.NewAPIError(404, []byte(`{"error":"invalid_request","error_description":"Comments disabled"}`))
		}
		return nil
	}}
	env := newTestEnv(api, activeTemplate,
		domain.CommentItem{DeviationID: "bad", Ts: 2},
		domain.CommentItem{DeviationID: "good", Ts: 1},
	)

	status := env.run(t, nil)

	if it, _ := env.queue.get("bad"); it.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", it.Status)
	}
	if it, _ := env.queue.get("good"); it.Status != domain.StatusCommented {
		t.Errorf("expected commented, got %s", it.Status)
	}
	if status.Processed != 1 || status.Errors != 1 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
}

func TestPoster_SpamStopsWorker(t *testing.T) {
	api := &fakeAPI{postErr: func(string) error {
		return httpclient.NewAPIError(403, []byte(`{"error":"forbidden","error_description":"Spam detected"}`))
	}}
	env := newTestEnv(api, activeTemplate,
		domain.CommentItem{DeviationID: "d1", Ts: 3},
		domain.CommentItem{DeviationID: "d2", Ts: 2},
		domain.CommentItem{DeviationID: "d3", Ts: 1},
	)

	status := env.run(t, nil)

	if api.calls() != 1 || status.StopReason != worker.ReasonCritical {
		t.Errorf("expected one call and critical stop, got %d calls, %+v", api.calls(), status.Stats)
	}
	if pending, _ := env.queue.CountPending(context.Background()); pending != 2 {
		t.Errorf("expected 2 pending, got %d", pending)
	}
}

func TestPoster_TemplateDeactivatedStopsWorker(t *testing.T) {
	env := newTestEnv(&fakeAPI{}, memTemplates{{ID: 1, Body: "hi", IsActive: true}},
		domain.CommentItem{DeviationID: "d1"},
	)
	// Шаблон выключают после успешной проверки предусловий
	if err := env.poster.Validate(context.Background(), worker.StartOptions{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	env.poster.templates = memTemplates{{ID: 1, Body: "hi", IsActive: false}}
	env.poster.templateID = 0

	job, _ := env.poster.Claim(context.Background())
	err := env.poster.Prepare(context.Background(), "tok", job)
	if !errors.Is(err, worker.ErrNoTemplates) {
		t.Errorf("expected ErrNoTemplates, got %v", err)
	}
}
