// Package syncx provides cancellation-aware synchronization primitives for
// code running inside a nursery task: a Mutex, an Event, a semaphore
// wrapping golang.org/x/sync/semaphore.Weighted, and a channel-backed Queue.
// Every blocking method checkpoints before it can suspend.
package syncx

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/rivergrove/nursery/nursery"
)

// Mutex is a non-reentrant, FIFO-ish mutual exclusion lock safe to acquire
// from multiple nursery tasks.
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is free or ctx is cancelled.
func (m *Mutex) Lock(ctx context.Context) error {
	if err := nursery.Checkpoint(ctx); err != nil {
		return err
	}
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return nursery.ErrCancelled
	}
}

// Unlock releases the mutex. Unlocking an already-unlocked Mutex panics,
// matching sync.Mutex's own contract.
func (m *Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("syncx: unlock of unlocked Mutex")
	}
}

// Event is a one-shot broadcast: once Set is called, every past and future
// Wait returns immediately. It never resets.
type Event struct {
	ch chan struct{}
}

// NewEvent returns an unset Event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set marks the event as fired. It is idempotent.
func (e *Event) Set() {
	select {
	case <-e.ch:
	default:
		close(e.ch)
	}
}

// IsSet reports whether Set has been called.
func (e *Event) IsSet() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until Set is called or ctx is cancelled.
func (e *Event) Wait(ctx context.Context) error {
	if err := nursery.Checkpoint(ctx); err != nil {
		return err
	}
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return nursery.ErrCancelled
	}
}

// Semaphore bounds concurrent holders of a resource. It wraps
// golang.org/x/sync/semaphore.Weighted rather than reimplementing weighted
// acquisition, the same library nursery.TaskGroup.SpawnBounded uses.
type Semaphore struct {
	w *semaphore.Weighted
}

// NewSemaphore returns a Semaphore that permits n concurrent holders.
func NewSemaphore(n int64) *Semaphore {
	return &Semaphore{w: semaphore.NewWeighted(n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := nursery.Checkpoint(ctx); err != nil {
		return err
	}
	if err := s.w.Acquire(ctx, 1); err != nil {
		return nursery.ErrCancelled
	}
	return nil
}

// Release frees one slot.
func (s *Semaphore) Release() { s.w.Release(1) }

// Queue is a bounded FIFO channel wrapper: Put blocks while full, Get blocks
// while empty, both checkpointed.
type Queue[T any] struct {
	ch chan T
}

// NewQueue returns a Queue with the given capacity. A capacity of 0 yields
// a rendezvous queue, matching an unbuffered channel.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Put blocks until there is room for v or ctx is cancelled.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	if err := nursery.Checkpoint(ctx); err != nil {
		return err
	}
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return nursery.ErrCancelled
	}
}

// Get blocks until a value is available or ctx is cancelled.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := nursery.Checkpoint(ctx); err != nil {
		return zero, err
	}
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		return zero, nursery.ErrCancelled
	}
}
