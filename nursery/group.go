package nursery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Observer receives lifecycle events for metrics/tracing, mirroring the
// hook points a production structured-concurrency runtime exposes. A nil
// Observer (the default) costs nothing beyond a nil check per hook.
type Observer interface {
	ScopeCreated(ctx context.Context)
	ScopeCancelled(ctx context.Context, cause error)
	GroupJoined(ctx context.Context, wait time.Duration, failures int)
	TaskStarted(ctx context.Context, name string)
	TaskFinished(ctx context.Context, name string, dur time.Duration, err error, panicked bool)
}

// Option configures a TaskGroup at construction time.
type Option func(*groupOptions)

type groupOptions struct {
	observer     Observer
	panicAsError bool
}

func defaultGroupOptions() groupOptions {
	return groupOptions{panicAsError: true}
}

// WithObserver attaches an Observer for metrics/tracing hooks.
func WithObserver(obs Observer) Option { return func(o *groupOptions) { o.observer = obs } }

// WithPanicAsError controls whether a spawned child's panic is converted to
// an error (the default) instead of propagating and crashing the process.
func WithPanicAsError(v bool) Option { return func(o *groupOptions) { o.panicAsError = v } }

// TaskGroup is a scope-anchored nursery: it guarantees every task spawned
// through it terminates before Wait returns, and aggregates failures.
type TaskGroup struct {
	scope  *Scope
	host   *Task
	opts   groupOptions
	active atomic.Bool

	wg sync.WaitGroup
	mu sync.Mutex

	children map[*Task]struct{}
	failures []error
}

// CreateTaskGroup opens the implicit cancel scope that bounds the group and
// returns a TaskGroup anchored to it. Callers must eventually call Wait.
func CreateTaskGroup(ctx context.Context, opts ...Option) (context.Context, *TaskGroup) {
	ctx, scope := OpenCancelScope(ctx, time.Time{}, false)
	o := defaultGroupOptions()
	for _, fn := range opts {
		fn(&o)
	}
	g := &TaskGroup{scope: scope, host: taskFromContext(ctx), opts: o, children: make(map[*Task]struct{})}
	g.active.Store(true)
	if o.observer != nil {
		o.observer.ScopeCreated(ctx)
	}
	return ctx, g
}

// Spawn schedules fn to run as a new child task bound to the group's cancel
// scope. Any task may spawn into the group, not just the host; the child's
// lifetime and cancellation follow the group's scope, never the spawner's.
// It fails with ErrNotActive once the group has begun joining.
func (g *TaskGroup) Spawn(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return g.spawn(ctx, name, fn)
}

// SpawnBounded is like Spawn, but the child first acquires one unit of sem,
// checkpointing cancellation while it waits for a slot. It is the
// bounded-concurrency analogue of the "check cancellation before dispatch"
// rule thread offload follows.
func (g *TaskGroup) SpawnBounded(ctx context.Context, sem *semaphore.Weighted, name string, fn func(ctx context.Context) error) error {
	return g.spawn(ctx, name, func(childCtx context.Context) error {
		if err := Checkpoint(childCtx); err != nil {
			return err
		}
		if err := sem.Acquire(childCtx, 1); err != nil {
			return ErrCancelled
		}
		defer sem.Release(1)
		return fn(childCtx)
	})
}

func (g *TaskGroup) spawn(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_ = taskFromContext(ctx) // spawning is only legal from inside the runtime
	if !g.active.Load() {
		return ErrNotActive
	}
	// The child's context chains from the group scope, not from the spawner:
	// cancelling the scope reaches every child natively, and a spawner's own
	// nested scopes never constrain a sibling it started.
	child := g.host.reg.newTask(g.scope.ctx)
	child.setCurrentScope(g.scope)

	g.mu.Lock()
	g.children[child] = struct{}{}
	g.mu.Unlock()

	g.wg.Add(1)
	go g.runChild(child, name, fn)
	return nil
}

func (g *TaskGroup) runChild(child *Task, name string, fn func(context.Context) error) {
	defer g.wg.Done()
	defer func() {
		g.mu.Lock()
		delete(g.children, child)
		g.mu.Unlock()
		g.host.reg.remove(child)
		child.cancel(nil)
	}()

	childCtx := withTask(child.ctx, child)
	if g.opts.observer != nil {
		g.opts.observer.TaskStarted(childCtx, name)
	}
	start := time.Now()

	err, panicked := g.runChildBody(childCtx, fn)

	if g.opts.observer != nil {
		g.opts.observer.TaskFinished(childCtx, name, time.Since(start), err, panicked)
	}
	if err == nil {
		return
	}

	g.scope.Cancel()
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return
	}
	g.mu.Lock()
	g.failures = append(g.failures, err)
	g.mu.Unlock()
}

func (g *TaskGroup) runChildBody(ctx context.Context, fn func(context.Context) error) (err error, panicked bool) {
	if !g.opts.panicAsError {
		return fn(ctx), false
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("nursery: task panicked: %v", r)
			panicked = true
		}
	}()
	return fn(ctx), false
}

// Wait blocks until every spawned child has terminated, folding bodyErr (the
// error the group's body block produced, nil on success) into the join, and
// returns nil, a single error, or an *ExceptionGroup.
func (g *TaskGroup) Wait(ctx context.Context, bodyErr error) error {
	// "begun joining": no further Spawn may succeed from this point. Flipped
	// here rather than after draining, since the contract binds to the start
	// of Wait, not its end.
	g.active.Store(false)

	if bodyErr != nil {
		if errors.Is(bodyErr, ErrCancelled) || errors.Is(bodyErr, context.Canceled) {
			g.scope.Cancel()
		} else {
			g.scope.Cancel()
			g.mu.Lock()
			g.failures = append(g.failures, bodyErr)
			g.mu.Unlock()
		}
	}

	// Conservative delivery: request a cancel on every surviving child
	// directly rather than distinguishing parked from running children. A
	// child inside its own shielded scope is unaffected either way.
	if g.scope.CancelCalled() {
		g.mu.Lock()
		for child := range g.children {
			child.requestCancel()
		}
		g.mu.Unlock()
	}

	// The join is itself a suspension point: WaitAllTasksBlocked must see
	// the host as parked while it awaits its children.
	start := time.Now()
	markBlocked(ctx, g.wg.Wait)
	g.scope.exit()

	g.mu.Lock()
	failures := g.failures
	g.mu.Unlock()

	if g.opts.observer != nil {
		g.opts.observer.GroupJoined(ctx, time.Since(start), len(failures))
		if g.scope.CancelCalled() {
			var cause error
			if len(failures) > 0 {
				cause = failures[0]
			}
			g.opts.observer.ScopeCancelled(ctx, cause)
		}
	}

	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	default:
		return &ExceptionGroup{errs: failures}
	}
}
