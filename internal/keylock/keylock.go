package keylock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrLockWait is returned when the caller's context expires before the key
// becomes free. It is a contention condition, not a cart-domain error.
var ErrLockWait = errors.New("lock wait exceeded")

// Manager grants at most one active critical section per key. Distinct keys
// never contend. Idle keys are evicted so the map does not grow unbounded.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{} // capacity 1, full while held
	refs int
}

func New() *Manager {
	return &Manager{locks: make(map[string]*entry)}
}

// KeyFor joins identity parts into a canonical key so that two callers
// deriving a key from the same logical identity always collide.
func KeyFor(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(normalized, ":")
}

// Acquire blocks until no other holder has key, or until ctx is done. The
// returned release func is safe to call more than once and must be called on
// every exit path of the guarded section.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.put(key, e)
		return nil, fmt.Errorf("%w: key %q: %v", ErrLockWait, key, ctx.Err())
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.sem
			m.put(key, e)
		})
	}
	return release, nil
}

// WithLock runs fn inside the critical section for key, releasing on all
// paths including a panic inside fn.
func (m *Manager) WithLock(ctx context.Context, key string, fn func() error) error {
	release, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (m *Manager) put(key string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
