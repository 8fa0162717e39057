package comments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Deviart/internal/deviantart"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
)

// memQueue — очередь комментирования в памяти.
type memQueue struct {
	mu      sync.Mutex
	items   map[string]*domain.CommentItem
	markErr error
}

func newMemQueue(items ...domain.CommentItem) *memQueue {
	q := &memQueue{items: make(map[string]*domain.CommentItem)}
	for _, it := range items {
		if it.Status == "" {
			it.Status = domain.StatusPending
		}
		q.items[it.DeviationID] = &it
	}
	return q
}

func (q *memQueue) Add(_ context.Context, item *domain.CommentItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.items[item.DeviationID]; ok {
		if item.Ts > existing.Ts {
			existing.Ts = item.Ts
		}
		return nil
	}
	it := *item
	it.Status = domain.StatusPending
	q.items[it.DeviationID] = &it
	return nil
}

func (q *memQueue) ClaimPending(_ context.Context) (*domain.CommentItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var pending []*domain.CommentItem
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

func (q *memQueue) set(id string, status domain.QueueStatus, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok || it.Status.IsTerminal() {
		return repo.ErrInvalidState
	}
	it.Status = status
	it.LastError = msg
	return nil
}

func (q *memQueue) MarkCommented(_ context.Context, id string) error {
	if q.markErr != nil {
		return q.markErr
	}
	return q.set(id, domain.StatusCommented, "")
}

func (q *memQueue) MarkFailed(_ context.Context, id, msg string) error {
	return q.set(id, domain.StatusFailed, msg)
}

func (q *memQueue) BumpAttempt(_ context.Context, id, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.items[id]; ok && it.Status == domain.StatusPending {
		it.Attempts++
		it.LastError = msg
	}
	return nil
}

func (q *memQueue) Remove(_ context.Context, ids []string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := q.items[id]; ok {
			delete(q.items, id)
			n++
		}
	}
	return n, nil
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

func (q *memQueue) get(id string) (domain.CommentItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return domain.CommentItem{}, false
	}
	return *it, true
}

// memLogs — журнал в памяти.
type memLogs struct {
	mu      sync.Mutex
	entries []domain.CommentLog
}

func (l *memLogs) Add(_ context.Context, e *domain.CommentLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *e)
	return nil
}

func (l *memLogs) CommentedIDs(_ context.Context, ids []string) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range ids {
		for _, e := range l.entries {
			if e.DeviationID == id && e.Status == domain.LogSent {
				out[id] = true
			}
		}
	}
	return out, nil
}

func (l *memLogs) byStatus(s domain.LogStatus) []domain.CommentLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CommentLog
	for _, e := range l.entries {
		if e.Status == s {
			out = append(out, e)
		}
	}
	return out
}

// memTemplates — шаблоны в памяти.
type memTemplates []domain.Template

func (m memTemplates) GetByID(_ context.Context, id int64) (*domain.Template, error) {
	for _, t := range m {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m memTemplates) ListActive(_ context.Context) ([]domain.Template, error) {
	var out []domain.Template
	for _, t := range m {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m memTemplates) CountActive(ctx context.Context) (int, error) {
	active, _ := m.ListActive(ctx)
	return len(active), nil
}

// memOffsets — offset'ы в памяти.
type memOffsets struct {
	mu      sync.Mutex
	offsets map[string]int
}

func (m *memOffsets) Offset(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offsets[key], nil
}

func (m *memOffsets) SetOffset(_ context.Context, key string, offset int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offsets == nil {
		m.offsets = make(map[string]int)
	}
	m.offsets[key] = offset
	return nil
}

// fakeAPI — DeviantArt в памяти.
type fakeAPI struct {
	mu        sync.Mutex
	pages     []*deviantart.Page[deviantart.Deviation]
	feeds     []deviantart.Feed
	offsets   []int
	pageErr   error
	missing   map[string]error
	postErr   func(id string) error
	faveErr   error
	posted    map[string]string
	faved     []string
	postCalls int
}

func (f *fakeAPI) BrowseFeed(_ context.Context, _ string, feed deviantart.Feed, offset, _ int) (*deviantart.Page[deviantart.Deviation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds = append(f.feeds, feed)
	f.offsets = append(f.offsets, offset)
	idx := len(f.offsets) - 1
	if f.pageErr != nil && idx >= len(f.pages) {
		return nil, f.pageErr
	}
	if idx >= len(f.pages) {
		return &deviantart.Page[deviantart.Deviation]{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeAPI) RecommendedDelay() time.Duration { return 0 }

func (f *fakeAPI) GetDeviation(_ context.Context, _ string, id string) (*deviantart.Deviation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.missing[id]; err != nil {
		return nil, err
	}
	return &deviantart.Deviation{DeviationID: id}, nil
}

func (f *fakeAPI) PostDeviationComment(_ context.Context, _ string, id, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	if f.postErr != nil {
		if err := f.postErr(id); err != nil {
			return "", err
		}
	}
	if f.posted == nil {
		f.posted = make(map[string]string)
	}
	f.posted[id] = body
	return "c-" + id, nil
}

func (f *fakeAPI) Fave(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faved = append(f.faved, id)
	return f.faveErr
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postCalls
}

var errNetwork = errors.New("connection reset")

func intPtr(v int) *int { return &v }
