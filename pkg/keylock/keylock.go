// Package keylock serializes work per business key inside one process.
//
// Entries are reference counted and evicted once the last holder or waiter
// leaves, so the map only holds keys that are currently in use.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Manager {
	return &Manager{locks: map[string]*entry{}}
}

// Lock blocks until key is free or ctx is done. The returned release func
// is safe to call more than once.
func (m *Manager) Lock(ctx context.Context, key string) (func(), error) {
	e := m.retain(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.release(key, e)
		})
	}, nil
}

type holdKey struct {
	m *Manager
}

type hold struct {
	mu      sync.Mutex
	held    map[string]bool
	unlocks []func()
}

// Hold opens a scope on ctx. Keys taken with WithLock through the returned
// ctx stay locked until release is called, and taking a key twice inside the
// scope does not block. A nested Hold joins the outer scope and gets a no-op
// release. A scope belongs to one goroutine.
func (m *Manager) Hold(ctx context.Context) (context.Context, func()) {
	if _, ok := ctx.Value(holdKey{m}).(*hold); ok {
		return ctx, func() {}
	}
	h := &hold{held: map[string]bool{}}
	return context.WithValue(ctx, holdKey{m}, h), func() {
		h.mu.Lock()
		unlocks := h.unlocks
		h.unlocks, h.held = nil, map[string]bool{}
		h.mu.Unlock()
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// WithLock runs fn while holding key. Inside a Hold scope the key is kept
// after fn returns.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if h, ok := ctx.Value(holdKey{m}).(*hold); ok {
		if err := h.take(ctx, m, key); err != nil {
			return err
		}
		return fn(ctx)
	}
	unlock, err := m.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

func (h *hold) take(ctx context.Context, m *Manager, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.held[key] {
		return nil
	}
	unlock, err := m.Lock(ctx, key)
	if err != nil {
		return err
	}
	h.held[key] = true
	h.unlocks = append(h.unlocks, unlock)
	return nil
}

// Len reports how many keys are currently tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Manager) retain(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs <= 0 {
		delete(m.locks, key)
	}
}
