package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey — ключ advisory lock планировщика.
const LockKey int64 = 5150_2024

// Locker — распределённая блокировка лидера.
type Locker interface {
	// TryLock захватывает блокировку или подтверждает, что она всё ещё
	// удерживается. Не блокируется.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// PGLock — лидерство через pg_try_advisory_lock на выделенном соединении.
type PGLock struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
	held bool
}

// NewPGLock создаёт PGLock.
func NewPGLock(pool *pgxpool.Pool, key int64) *PGLock {
	return &PGLock{pool: pool, key: key}
}

// TryLock реализует Locker. Пока соединение живо, захваченная
// блокировка остаётся за этой сессией.
func (l *PGLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return false, fmt.Errorf("acquire lock connection: %w", err)
		}
		l.conn = conn
	}

	if l.held {
		if err := l.conn.Ping(ctx); err != nil {
			l.dropLocked()
			return false, fmt.Errorf("lock connection lost: %w", err)
		}
		return true, nil
	}

	var ok bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		l.dropLocked()
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	l.held = ok
	return ok, nil
}

// Unlock освобождает блокировку и возвращает соединение в пул.
func (l *PGLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
		l.held = false
	}()

	if !l.held {
		return nil
	}
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	return nil
}

// dropLocked закрывает сломанное соединение: сессия и её блокировка
// при этом исчезают на стороне сервера.
func (l *PGLock) dropLocked() {
	_ = l.conn.Conn().Close(context.Background())
	l.conn.Release()
	l.conn = nil
	l.held = false
}
