package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Controller — управляющая поверхность воркера, не зависящая от типа элемента.
// *Worker[T] удовлетворяет интерфейсу.
type Controller interface {
	Name() string
	Start(ctx context.Context, opts StartOptions) error
	Stop() (StopResult, error)
	Status(ctx context.Context) Status
	Running() bool
}

// Registry — воркеры по имени фичи.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Controller
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Controller)}
}

// Register добавляет воркер под его именем.
func (r *Registry) Register(c Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[c.Name()] = c
}

// Get возвращает воркер фичи.
func (r *Registry) Get(name string) (Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return c, nil
}

// Names возвращает имена фич в алфавитном порядке.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusAll возвращает статусы всех воркеров.
func (r *Registry) StatusAll(ctx context.Context) []Status {
	names := r.Names()
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		c, err := r.Get(name)
		if err != nil {
			continue
		}
		statuses = append(statuses, c.Status(ctx))
	}
	return statuses
}

// StopAll останавливает все живые воркеры параллельно.
func (r *Registry) StopAll(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	var wg sync.WaitGroup
	for _, name := range r.Names() {
		c, err := r.Get(name)
		if err != nil || !c.Running() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Stop()
			if err != nil {
				return
			}
			logger.Info("worker shutdown", "feature", c.Name(), "stopped", res.Stopped)
		}()
	}
	wg.Wait()
}
