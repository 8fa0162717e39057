package fave

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/worker"
)

// memQueue — очередь избранного в памяти; Add снова делает элемент pending.
type memQueue struct {
	mu    sync.Mutex
	items map[string]*domain.FeedItem
}

func newMemQueue(ids ...string) *memQueue {
	q := &memQueue{items: make(map[string]*domain.FeedItem)}
	for i, id := range ids {
		q.items[id] = &domain.FeedItem{DeviationID: id, Ts: int64(len(ids) - i), Status: domain.StatusPending}
	}
	return q
}

func (q *memQueue) Add(_ context.Context, id string, ts int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		q.items[id] = &domain.FeedItem{DeviationID: id, Ts: ts, Status: domain.StatusPending}
		return nil
	}
	it.Ts = max(it.Ts, ts)
	it.Status = domain.StatusPending
	return nil
}

func (q *memQueue) ClaimPending(_ context.Context) (*domain.FeedItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var pending []*domain.FeedItem
	for _, it := range q.items {
		if it.Status == domain.StatusPending {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Ts > pending[j].Ts })
	it := *pending[0]
	return &it, nil
}

func (q *memQueue) set(id string, status domain.QueueStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[id].Status = status
	return nil
}

func (q *memQueue) MarkFaved(_ context.Context, id string) error {
	return q.set(id, domain.StatusFaved)
}

func (q *memQueue) MarkFailed(_ context.Context, id, _ string) error {
	return q.set(id, domain.StatusFailed)
}

func (q *memQueue) BumpAttempt(_ context.Context, id, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[id].Attempts++
	return nil
}

func (q *memQueue) CountPending(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Status == domain.StatusPending {
			n++
		}
	}
	return n, nil
}

func (q *memQueue) get(id string) domain.FeedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.items[id]
}

type memOffsets map[string]int

func (m memOffsets) Offset(_ context.Context, key string) (int, error) { return m[key], nil }

func (m memOffsets) SetOffset(_ context.Context, key string, offset int) error {
	m[key] = offset
	return nil
}

type fakeAPI struct {
	mu      sync.Mutex
	pages   []*deviantart.Page[deviantart.Deviation]
	browsed int
	faveErr func(id string) error
	faved   []string
	calls   int
}

func (f *fakeAPI) BrowseFeed(_ context.Context, _ string, _ deviantart.Feed, _, _ int) (*deviantart.Page[deviantart.Deviation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.browsed++
	if f.browsed > len(f.pages) {
		return nil, errors.New("no more pages")
	}
	return f.pages[f.browsed-1], nil
}

func (f *fakeAPI) Fave(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.faveErr != nil {
		if err := f.faveErr(id); err != nil {
			return err
		}
	}
	f.faved = append(f.faved, id)
	return nil
}

func (f *fakeAPI) RecommendedDelay() time.Duration { return 0 }

func intPtr(v int) *int { return &v }

func runWorker(t *testing.T, svc *Service) worker.Status {
	t.Helper()
	w := worker.New(worker.Config[domain.FeedItem]{
		Feature: svc,
		Options: worker.Options{IdleDelay: time.Millisecond, StopWhenDrained: true},
	})
	if err := w.Start(context.Background(), worker.StartOptions{Token: "tok"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for w.Running() {
		if time.Now().After(deadline) {
			t.Fatal("worker did not stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return w.Status(context.Background())
}

func TestCollect_ReArmsAndSavesOffset(t *testing.T) {
	queue := newMemQueue("old")
	queue.items["old"].Status = domain.StatusFaved
	state := memOffsets{}
	api := &fakeAPI{pages: []*deviantart.Page[deviantart.Deviation]{
		{HasMore: true, NextOffset: intPtr(50), Results: []deviantart.Deviation{{DeviationID: "old", PublishedTime: 500}}},
		{HasMore: false, NextOffset: intPtr(60), Results: []deviantart.Deviation{{DeviationID: "new"}, {DeviationID: ""}}},
	}}
	svc := New(Config{
		API:   api,
		Queue: queue,
		State: state,
		Sleep: func(context.Context, time.Duration) error { return nil },
		Now:   func() time.Time { return time.Unix(1000, 0) },
	})

	res, err := svc.Collect(context.Background(), "tok", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Pages != 2 || res.Added != 2 || res.Offset != 60 {
		t.Errorf("unexpected result %+v", res)
	}
	if state[repo.StateFeedOffset] != 60 {
		t.Errorf("offset not saved: %v", state)
	}
	// Повторно увиденная работа снова pending
	if old := queue.get("old"); old.Status != domain.StatusPending || old.Ts != 500 {
		t.Errorf("expected re-armed item, got %+v", old)
	}
	if nw := queue.get("new"); nw.Ts != 1000 {
		t.Errorf("expected fallback ts, got %d", nw.Ts)
	}
}

func TestValidate_EmptyQueue(t *testing.T) {
	svc := New(Config{Queue: newMemQueue()})
	if err := svc.Validate(context.Background(), worker.StartOptions{}); !errors.Is(err, worker.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

func TestWorker_FavesQueue(t *testing.T) {
	api := &fakeAPI{}
	queue := newMemQueue("d1", "d2", "d3")

	status := runWorker(t, New(Config{API: api, Queue: queue}))

	if status.Processed != 3 || status.Errors != 0 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		if it := queue.get(id); it.Status != domain.StatusFaved {
			t.Errorf("%s: expected faved, got %s", id, it.Status)
		}
	}
	if api.faved[0] != "d1" {
		t.Errorf("expected newest first, got %v", api.faved)
	}
}

func TestWorker_FaveLimitHalts(t *testing.T) {
	api := &fakeAPI{faveErr: func(string) error {
		return httpclient.NewAPIError(400, []byte(`{"error":"invalid_request","error_code":4,"error_description":"Fave limit"}`))
	}}
	queue := newMemQueue("d1", "d2")

	status := runWorker(t, New(Config{API: api, Queue: queue}))

	if api.calls != 1 || status.StopReason != worker.ReasonHalted {
		t.Errorf("expected single call and halted stop, got %d calls, %+v", api.calls, status.Stats)
	}
	// Лимит учитывается как ошибка, но серию ошибок сбрасывает
	if status.Errors != 1 || status.ConsecutiveFailures != 0 {
		t.Errorf("unexpected counters %+v", status.Stats)
	}
	// Элемент остаётся pending с увеличенным счётчиком попыток
	if it := queue.get("d1"); it.Status != domain.StatusPending || it.Attempts != 1 {
		t.Errorf("unexpected item %+v", it)
	}
}

func TestWorker_NonRetryableMarksFailed(t *testing.T) {
	api := &fakeAPI{faveErr: func(id string) error {
		if id == "d1" {
			return httpclient.NewAPIError(400, []byte(`{"error":"invalid_request","error_code":1}`))
		}
		return nil
	}}
	queue := newMemQueue("d1", "d2")

	status := runWorker(t, New(Config{API: api, Queue: queue}))

	if it := queue.get("d1"); it.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", it.Status)
	}
	if it := queue.get("d2"); it.Status != domain.StatusFaved {
		t.Errorf("expected faved, got %s", it.Status)
	}
	if status.Processed != 1 || status.Errors != 1 {
		t.Errorf("unexpected status %+v", status.Stats)
	}
}

func TestHalt(t *testing.T) {
	svc := New(Config{})
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"limit code", httpclient.NewAPIError(400, []byte(`{"error_code":4}`)), true},
		{"limit code string", httpclient.NewAPIError(400, []byte(`{"error_code":"4"}`)), true},
		{"other code", httpclient.NewAPIError(400, []byte(`{"error_code":2}`)), false},
		{"other status", httpclient.NewAPIError(403, []byte(`{"error_code":4}`)), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.Halt(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
