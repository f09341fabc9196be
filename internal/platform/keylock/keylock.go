// Package keylock serializes critical sections identified by a string key.
// The booking coordinator uses it to make the conflict check and the write
// for one (doctor, date) pair mutually exclusive without blocking bookings
// for unrelated doctors or days.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired within the
// caller's wait budget.
var ErrTimeout = errors.New("keylock: acquisition timed out")

type entry struct {
	ch   chan struct{} // holds one token when the lock is free
	refs int
}

// Map is a set of named locks. Locks are created on first use and removed
// once no goroutine holds or waits for them. The zero value is not usable;
// call New.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Acquire takes the lock for key, waiting at most maxWait. It returns a
// release function on success and ErrTimeout when the wait budget is
// exhausted, or the context's error when ctx is cancelled first.
func (m *Map) Acquire(ctx context.Context, key string, maxWait time.Duration) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-e.ch:
		return func() { m.release(key, e) }, nil
	case <-timer.C:
		m.unref(key, e)
		return nil, ErrTimeout
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	}
}

func (m *Map) release(key string, e *entry) {
	e.ch <- struct{}{}
	m.unref(key, e)
}

func (m *Map) unref(key string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// Len reports how many keys currently have holders or waiters.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
