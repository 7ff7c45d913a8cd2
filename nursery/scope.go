package nursery

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Scope is a node in the cancel-scope tree. Scopes of a single task form a
// stack rooted at nil; opening pushes, closing pops.
//
// Each scope owns a context derived from its parent's: cancellation delivery
// rides Go's own context tree, with a context.WithoutCancel boundary inserted
// for shielded scopes so ancestor cancellation never crosses into them. The
// policy questions (has my chain been cancelled, which deadline binds) are
// answered by walking the parent pointers, never by the context values.
type Scope struct {
	host     *Task
	deadline time.Time // zero value means no deadline (+Inf)
	shield   bool
	parent   *Scope

	ctx        context.Context
	cancelSelf context.CancelCauseFunc

	cancelCalled atomic.Bool
	timeoutFired atomic.Bool

	disarmTimer context.CancelFunc
}

// Deadline returns the scope's absolute deadline, or the zero Time if none.
func (s *Scope) Deadline() time.Time { return s.deadline }

// Shield reports whether the scope absorbs cancellation from its ancestors.
func (s *Scope) Shield() bool { return s.shield }

// CancelCalled reports whether Cancel has been invoked on this scope.
func (s *Scope) CancelCalled() bool { return s.cancelCalled.Load() }

// OpenCancelScope pushes a new cancel scope onto the calling task's stack and
// returns the context the scope's body must run under. The caller must
// eventually call scope.Close(err) with the error its body produced (nil on
// success) to pop the scope and translate cancellation; code after Close
// resumes under the context passed in here, which the scope never cancels.
func OpenCancelScope(ctx context.Context, deadline time.Time, shield bool) (context.Context, *Scope) {
	t := taskFromContext(ctx)
	base := ctx
	if shield {
		base = context.WithoutCancel(ctx)
	}
	sctx, cancelSelf := context.WithCancelCause(base)
	s := &Scope{
		host:       t,
		deadline:   deadline,
		shield:     shield,
		parent:     t.currentScope(),
		ctx:        sctx,
		cancelSelf: cancelSelf,
	}
	t.setCurrentScope(s)

	if !deadline.IsZero() {
		timerCtx, disarm := context.WithCancel(context.Background())
		s.disarmTimer = disarm
		go s.runDeadlineTimer(timerCtx, deadline)
	}
	return sctx, s
}

// runDeadlineTimer runs as its own goroutine so that expiry reaches the host
// even while it is parked at a suspension point. The latch must be set before
// Cancel: Close reads it to pick TimedOut over a plain Cancelled.
func (s *Scope) runDeadlineTimer(timerCtx context.Context, deadline time.Time) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-timer.C:
		s.timeoutFired.Store(true)
		s.Cancel()
	case <-timerCtx.Done():
	}
}

// FailAfter opens a finite-deadline scope that lets TimedOut propagate.
func FailAfter(ctx context.Context, delay time.Duration, shield bool) (context.Context, *Scope) {
	return OpenCancelScope(ctx, time.Now().Add(delay), shield)
}

// MoveOnAfter opens a finite-deadline scope whose TimedOut is swallowed by
// CloseMoveOn when the timeout actually fired (self-triggered), letting the
// host continue past the block as if the body had returned normally.
func MoveOnAfter(ctx context.Context, delay time.Duration, shield bool) (context.Context, *Scope) {
	return OpenCancelScope(ctx, time.Now().Add(delay), shield)
}

// Cancel idempotently marks the scope cancelled and cancels its context. The
// call itself never fails; tasks inside the scope observe the cancellation at
// their next checkpoint or suspension point. Shielded descendant scopes are
// untouched: their contexts branch off through a WithoutCancel boundary, so
// delivery stops there structurally, and they remain cancellable by a direct
// Cancel on themselves.
func (s *Scope) Cancel() {
	if !s.cancelCalled.CompareAndSwap(false, true) {
		return
	}
	s.cancelSelf(ErrCancelled)
}

// exit pops the scope from its host's stack, disarms any deadline timer, and
// releases the scope's context, without translating the body's error.
// TaskGroup uses this directly because it classifies cancellation itself;
// Close wraps it with the translation OpenCancelScope callers need.
func (s *Scope) exit() {
	if s.disarmTimer != nil {
		s.disarmTimer()
	}
	s.host.setCurrentScope(s.parent)
	s.cancelSelf(context.Canceled)
}

// Close pops the scope and translates a cancelled body error:
//   - if this scope's own deadline timer fired, Cancelled becomes TimedOut;
//   - else if this scope was never cancelled, Cancelled propagates unchanged
//     (it belongs to an ancestor scope, not this one);
//   - else (this scope's own cancel caused it) it is swallowed.
//
// Any other error, including nil, passes through unchanged: a failure
// produced alongside a deadline firing wins over the timeout. A scope's own
// exit doubles as one final checkpoint: if the body returned nil without ever
// observing this scope's cancellation (a shielded nested scope can absorb it
// for the whole body), that cancellation is still honored here rather than
// lost.
func (s *Scope) Close(bodyErr error) error {
	s.exit()
	if bodyErr == nil && s.cancelCalled.Load() {
		bodyErr = ErrCancelled
	}
	if errors.Is(bodyErr, ErrCancelled) || errors.Is(bodyErr, context.Canceled) {
		if s.timeoutFired.Load() {
			return ErrTimedOut
		}
		if !s.cancelCalled.Load() {
			return bodyErr
		}
		return nil
	}
	return bodyErr
}

// CloseMoveOn is Close plus MoveOnAfter's extra rule: a TimedOut that this
// scope's own deadline produced is swallowed instead of propagated.
func (s *Scope) CloseMoveOn(bodyErr error) error {
	err := s.Close(bodyErr)
	if errors.Is(err, ErrTimedOut) && s.cancelCalled.Load() {
		return nil
	}
	return err
}

// CurrentEffectiveDeadline returns the minimum deadline over the calling
// task's scope chain, or the zero Time if none of them carry a deadline.
func CurrentEffectiveDeadline(ctx context.Context) time.Time {
	var best time.Time
	for s := taskFromContext(ctx).currentScope(); s != nil; s = s.parent {
		if s.deadline.IsZero() {
			continue
		}
		if best.IsZero() || s.deadline.Before(best) {
			best = s.deadline
		}
	}
	return best
}
