// Package thread offloads synchronous, blocking work onto a dedicated
// goroutine pool so it never blocks a nursery task's own checkpoint loop.
// The offloaded call cannot be interrupted mid-flight (Go has no safe way to
// abort an arbitrary running goroutine): cancellation before dispatch keeps
// the call from starting, and cancellation after dispatch only ends the
// caller's wait while the call runs on to completion.
package thread

import (
	"context"

	"github.com/rivergrove/nursery/nursery"
)

// Pool bounds the number of goroutines concurrently running offloaded work.
type Pool struct {
	tokens chan struct{}
}

// NewPool returns a Pool that allows at most size concurrent offloaded
// calls. A size of 0 means unbounded.
func NewPool(size int) *Pool {
	if size <= 0 {
		return &Pool{}
	}
	return &Pool{tokens: make(chan struct{}, size)}
}

// RunInThread runs fn on a goroutine pulled from the pool and returns its
// result. It checkpoints before acquiring a slot and before dispatching, so
// a cancelled caller never starts work it will have to discard; once fn is
// running, though, it runs to completion even if ctx is later cancelled.
func RunInThread[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := nursery.Checkpoint(ctx); err != nil {
		return zero, err
	}
	if p.tokens != nil {
		select {
		case p.tokens <- struct{}{}:
		case <-ctx.Done():
			return zero, nursery.ErrCancelled
		}
		if err := nursery.Checkpoint(ctx); err != nil {
			<-p.tokens
			return zero, err
		}
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn()
		// The slot is held until fn itself returns, not until the caller
		// stops waiting, so abandoned calls still count against the bound.
		if p.tokens != nil {
			<-p.tokens
		}
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		// fn keeps running in the background; only the wait is abandoned.
		go func() { <-done }()
		return zero, nursery.ErrCancelled
	}
}

// RunAsyncFromThread schedules fn to run back on the nursery runtime from
// inside an offloaded thread body and blocks that thread until fn returns.
// It has no cancellation of its own: the calling goroutine is not itself a
// nursery task, so there is no checkpoint to honor.
func RunAsyncFromThread[T any](runtimeCtx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(runtimeCtx)
		done <- result{val, err}
	}()
	r := <-done
	return r.val, r.err
}
