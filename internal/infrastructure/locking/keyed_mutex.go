package locking

import (
	"context"
	"fmt"
	"sync"

	"github.com/wms-platform/disposition-service/internal/domain"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process lock keyed by string. It serializes callers
// within a single replica only.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (m *KeyedMutex) ref(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *KeyedMutex) unref(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// WithLock runs fn while holding every key. Waiting is bounded by ctx; a
// cancelled wait is reported as a concurrent modification.
func (m *KeyedMutex) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalizeKeys(keys)
	held := make([]*keyLock, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
			m.unref(keys[i], held[i])
		}
	}

	for _, key := range keys {
		l := m.ref(key)
		select {
		case l.sem <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			m.unref(key, l)
			release()
			return fmt.Errorf("%w: waiting for lock %s: %v", domain.ErrConcurrentModification, key, ctx.Err())
		}
	}
	defer release()

	return fn(ctx)
}

// Size reports the number of keys currently held or awaited
func (m *KeyedMutex) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
