// Package ratelimit ограничивает частоту запросов по ключу (обычно IP клиента)
// скользящим окном. Memory работает в пределах процесса, Redis разделяет
// счётчики между репликами.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter отвечает, можно ли пропустить ещё один запрос с ключом key.
// remaining: сколько запросов осталось в текущем окне.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
	Reset(ctx context.Context, key string) error
}

type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// Memory: скользящее окно в памяти процесса.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(ctx context.Context, key string, limit int, win time.Duration) (bool, int, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &window{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-win)

	kept := e.hits[:0]
	for _, ts := range e.hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.hits = kept

	if len(e.hits) >= limit {
		return false, 0, nil
	}
	e.hits = append(e.hits, now)
	return true, limit - len(e.hits), nil
}

func (m *Memory) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Sweep удаляет пустые и устаревшие окна. Вызывается периодически из Run.
func (m *Memory) Sweep(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		e.mu.Lock()
		stale := len(e.hits) == 0 || !e.hits[len(e.hits)-1].After(cutoff)
		e.mu.Unlock()
		if stale {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Run чистит устаревшие окна каждые interval, пока не отменён ctx.
func (m *Memory) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(maxAge)
		}
	}
}
