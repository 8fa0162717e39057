package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
)

// errInvalidKey — ключ элемента очереди не разбирается.
var errInvalidKey = errors.New("invalid queue key")

// QueueAdmin — администрирование очереди фичи. Ключи элементов строковые:
// deviationid для комментариев и избранного, queue_id для рассылки.
type QueueAdmin interface {
	List(ctx context.Context, filter repo.ListFilter) (any, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
	Clear(ctx context.Context, status domain.QueueStatus) (int64, error)
	ResetFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, keys []string) (int64, error)
}

// queueRepo — общие методы репозиториев очередей.
type queueRepo[T any, K any] interface {
	List(ctx context.Context, filter repo.ListFilter) ([]T, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
	Clear(ctx context.Context, status domain.QueueStatus) (int64, error)
	ResetFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, keys []K) (int64, error)
}

type queueAdapter[T any, K any] struct {
	repo     queueRepo[T, K]
	parseKey func(string) (K, error)
}

func (a queueAdapter[T, K]) List(ctx context.Context, filter repo.ListFilter) (any, error) {
	return a.repo.List(ctx, filter)
}

func (a queueAdapter[T, K]) Stats(ctx context.Context) (domain.QueueStats, error) {
	return a.repo.Stats(ctx)
}

func (a queueAdapter[T, K]) Clear(ctx context.Context, status domain.QueueStatus) (int64, error) {
	return a.repo.Clear(ctx, status)
}

func (a queueAdapter[T, K]) ResetFailed(ctx context.Context) (int64, error) {
	return a.repo.ResetFailed(ctx)
}

func (a queueAdapter[T, K]) Remove(ctx context.Context, keys []string) (int64, error) {
	parsed := make([]K, 0, len(keys))
	for _, k := range keys {
		key, err := a.parseKey(k)
		if err != nil {
			return 0, err
		}
		parsed = append(parsed, key)
	}
	return a.repo.Remove(ctx, parsed)
}

func deviationKey(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty deviationid", errInvalidKey)
	}
	return s, nil
}

func queueIDKey(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a queue_id", errInvalidKey, s)
	}
	return id, nil
}

// CommentQueue — очередь комментариев по deviationid.
func CommentQueue(r queueRepo[domain.CommentItem, string]) QueueAdmin {
	return queueAdapter[domain.CommentItem, string]{repo: r, parseKey: deviationKey}
}

// FeedQueue — очередь избранного по deviationid.
func FeedQueue(r queueRepo[domain.FeedItem, string]) QueueAdmin {
	return queueAdapter[domain.FeedItem, string]{repo: r, parseKey: deviationKey}
}

// ProfileQueue — очередь рассылки по queue_id.
func ProfileQueue(r queueRepo[domain.ProfileItem, int64]) QueueAdmin {
	return queueAdapter[domain.ProfileItem, int64]{repo: r, parseKey: queueIDKey}
}
