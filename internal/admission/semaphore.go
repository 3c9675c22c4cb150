// Package admission provides a FIFO counting semaphore used to bound the
// number of concurrently in-flight upstream LLM calls.
package admission

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

var (
	// ErrAbandoned is returned to waiters queued on a semaphore that was
	// replaced by a capacity change. The abandonment is explicit so callers
	// never park forever on a dead instance.
	ErrAbandoned = errors.New("admission: semaphore abandoned")

	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("admission: capacity must be positive")
)

// Semaphore is a counting admission gate with a strict FIFO waiter queue.
//
// A released permit is handed directly to the longest-waiting caller rather
// than broadcast, so grant order is arrival order at Acquire. One instance
// per logical pool; capacity changes replace the instance (see Abandon).
type Semaphore struct {
	mu      sync.Mutex
	permits int
	cap     int
	waiters *list.List // of chan struct{}
	dead    bool
}

// New creates a semaphore with the given capacity.
func New(capacity int) (*Semaphore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Semaphore{
		permits: capacity,
		cap:     capacity,
		waiters: list.New(),
	}, nil
}

// MustNew is New for statically known capacities.
func MustNew(capacity int) *Semaphore {
	s, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return s
}

// Acquire blocks until a permit is available, the context is done, or the
// semaphore is abandoned. On success the caller holds one permit and must
// call Release on every exit path.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return ErrAbandoned
	}
	if s.permits > 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}

	// No permit free: join the FIFO queue. The channel is buffered so a
	// handoff racing with cancellation never blocks the releaser.
	ready := make(chan struct{}, 1)
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case _, ok := <-ready:
		if !ok {
			return ErrAbandoned
		}
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case _, ok := <-ready:
			s.mu.Unlock()
			if ok {
				// 许可在取消的同时已经递达，归还并让给下一位等待者。
				s.Release()
			}
			return ctx.Err()
		default:
		}
		s.waiters.Remove(elem)
		s.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire acquires a permit without blocking.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead || s.permits == 0 {
		return false
	}
	s.permits--
	return true
}

// Release frees one permit. If a waiter is queued, the permit is handed
// directly to the oldest waiter; the free-permit count is never observable
// in between.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		front.Value.(chan struct{}) <- struct{}{}
		return
	}
	if s.permits < s.cap {
		s.permits++
	}
}

// Abandon fails every queued waiter with ErrAbandoned and rejects future
// acquires. Callers already holding a permit are unaffected; their Release
// becomes a no-op against a dead instance.
func (s *Semaphore) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	s.dead = true
	for front := s.waiters.Front(); front != nil; front = s.waiters.Front() {
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
	}
}

// Capacity returns the configured permit count.
func (s *Semaphore) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap
}

// Active returns the number of permits currently held.
func (s *Semaphore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap - s.permits
}

// QueueLen returns the number of callers waiting for a permit.
func (s *Semaphore) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}
