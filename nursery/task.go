package nursery

import (
	"context"
	"sync"
	"sync/atomic"
)

type ctxKey int

const taskCtxKey ctxKey = 0

// Task stands in for the "host task": the unit a scope belongs to. It carries
// the pointer to the task's currently-open scope (the per-task slot of the
// task registry) plus the root context the task's scopes chain from. In Go
// each task already carries its own identity (the *Task itself) through the
// context it hands to its body; the registry keys on the task's id, a
// per-registry counter assigned in newTask.
type Task struct {
	id     int64
	reg    *registry
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu    sync.Mutex
	scope *Scope

	blocked atomic.Bool
}

// registry is the per-Run bookkeeping: the task registry plus the enumeration
// WaitAllTasksBlocked needs. Unlike the single-threaded event loop this model
// descends from, Go tasks run on real goroutines, so access is mutex-guarded
// rather than confined to one thread.
type registry struct {
	mu     sync.Mutex
	nextID atomic.Int64
	tasks  map[int64]*Task
}

func newRegistry() *registry {
	return &registry{tasks: make(map[int64]*Task)}
}

// newTask creates a Task whose root context derives from parent, so a child
// task spawned under a group scope inherits that scope's cancellation
// natively while nesting its own scopes on top.
func (r *registry) newTask(parent context.Context) *Task {
	cctx, cancel := context.WithCancelCause(parent)
	t := &Task{id: r.nextID.Add(1), reg: r, ctx: cctx, cancel: cancel}
	r.mu.Lock()
	r.tasks[t.id] = t
	r.mu.Unlock()
	return t
}

func (r *registry) remove(t *Task) {
	r.mu.Lock()
	delete(r.tasks, t.id)
	r.mu.Unlock()
}

// allBlockedExcept reports whether every registered task other than self is
// currently parked at a checkpoint.
func (r *registry) allBlockedExcept(self *Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if id == self.id {
			continue
		}
		if !t.blocked.Load() {
			return false
		}
	}
	return true
}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskCtxKey, t)
}

func taskFromContext(ctx context.Context) *Task {
	t, ok := ctx.Value(taskCtxKey).(*Task)
	if !ok {
		panic("nursery: context carries no task; was this called outside nursery.Run?")
	}
	return t
}

func (t *Task) currentScope() *Scope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scope
}

func (t *Task) setCurrentScope(s *Scope) {
	t.mu.Lock()
	t.scope = s
	t.mu.Unlock()
}

func (t *Task) requestCancel() {
	t.cancel(ErrCancelled)
}

// scopeChainCancelled walks from top toward the root and reports whether some
// scope on the chain has been cancelled with no shielded scope standing
// between it and the current position. A scope's own cancellation is visible
// even when that scope is shielded; the shield only blocks cancellation
// arriving from above it.
func scopeChainCancelled(top *Scope) bool {
	for s := top; s != nil; s = s.parent {
		if s.cancelCalled.Load() {
			return true
		}
		if s.shield {
			return false
		}
	}
	return false
}

// Checkpoint is a cancellation checkpoint: it must be invoked at the entry
// of every potentially-blocking operation the runtime offers. It fails with
// ErrCancelled if ctx has been cancelled or if any unshielded scope on the
// calling task's chain has been cancelled.
func Checkpoint(ctx context.Context) error {
	t := taskFromContext(ctx)
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if scopeChainCancelled(t.currentScope()) {
		return ErrCancelled
	}
	return nil
}

// markBlocked records that the calling task is parked at a suspension point
// for the duration of fn, for WaitAllTasksBlocked to observe.
func markBlocked(ctx context.Context, fn func()) {
	t := taskFromContext(ctx)
	t.blocked.Store(true)
	defer t.blocked.Store(false)
	fn()
}
