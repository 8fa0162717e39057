package template

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/shaiso/Deviart/internal/domain"
)

// ErrNoActive — подходящего активного шаблона нет.
var ErrNoActive = errors.New("no active template")

// Source — хранилище шаблонов.
type Source interface {
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
	ListActive(ctx context.Context) ([]domain.Template, error)
}

// Select возвращает шаблон id, если id > 0, иначе случайный активный.
// Неактивный или отсутствующий шаблон — ErrNoActive.
func Select(ctx context.Context, src Source, id int64) (*domain.Template, error) {
	if id > 0 {
		t, err := src.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: template %d: %v", ErrNoActive, id, err)
		}
		if !t.IsActive {
			return nil, fmt.Errorf("%w: template %d is not active", ErrNoActive, id)
		}
		return t, nil
	}

	active, err := src.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActive
	}
	t := active[rand.IntN(len(active))]
	return &t, nil
}
