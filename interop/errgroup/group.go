// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics using nursery's TaskGroup. It enables incremental migration of
// code already running inside a nursery task without pulling errgroup's own
// cancellation model into the core library.
package errgroup

import (
	"context"

	"github.com/rivergrove/nursery/nursery"
)

// Group is an errgroup-like wrapper over nursery.TaskGroup (fail-fast: the
// first non-nil error cancels every task still running).
//
// Unlike golang.org/x/sync/errgroup.WithContext, ctx must already be running
// inside a nursery.Run body: the Group rides the task's own cancel-scope
// tree rather than deriving a fresh, independent context.Context.
type Group struct {
	ctx context.Context
	tg  *nursery.TaskGroup
}

// WithContext creates a Group bound to ctx. The returned context's Done
// channel closes as soon as any function passed to Go returns a non-nil
// error, the same guarantee golang.org/x/sync/errgroup.WithContext gives.
func WithContext(ctx context.Context) (*Group, context.Context) {
	groupCtx, tg := nursery.CreateTaskGroup(ctx)
	return &Group{ctx: groupCtx, tg: tg}, groupCtx
}

// Go starts f as a new task. It should return a non-nil error to signal
// failure, which cancels every other task still running in the group.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	_ = g.tg.Spawn(g.ctx, "errgroup-task", func(context.Context) error {
		return f()
	})
}

// Wait blocks until every started function has returned. It returns the
// first non-nil error, a *nursery.ExceptionGroup if more than one task
// failed concurrently, or nil on success.
func (g *Group) Wait() error {
	return g.tg.Wait(g.ctx, nil)
}
