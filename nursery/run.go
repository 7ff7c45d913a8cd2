package nursery

import (
	"context"
	"runtime"
	"time"
)

// Run drives entry as the root task of a fresh structured-concurrency
// runtime and returns its error. The root task's context derives from ctx,
// so cancelling ctx surfaces inside entry as cooperative cancellation at the
// next checkpoint.
func Run(ctx context.Context, entry func(ctx context.Context) error) error {
	reg := newRegistry()
	root := reg.newTask(ctx)
	defer root.cancel(nil)
	defer reg.remove(root)

	return entry(withTask(root.ctx, root))
}

// Sleep is a checkpointed suspension for delay. It fails with ErrCancelled
// immediately if the calling task's chain is already cancelled, and
// otherwise returns early with ErrCancelled as soon as cancellation arrives.
func Sleep(ctx context.Context, delay time.Duration) error {
	if err := Checkpoint(ctx); err != nil {
		return err
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	var err error
	markBlocked(ctx, func() {
		select {
		case <-timer.C:
		case <-ctx.Done():
			err = ErrCancelled
		}
	})
	return err
}

// WaitAllTasksBlocked returns once every task in the calling task's runtime,
// other than the caller, is parked at a suspension point. It is a testing
// aid, not a synchronization primitive production code should depend on.
func WaitAllTasksBlocked(ctx context.Context) error {
	self := taskFromContext(ctx)
	for {
		if err := Checkpoint(ctx); err != nil {
			return err
		}
		if self.reg.allBlockedExcept(self) {
			return nil
		}
		runtime.Gosched()
		if err := Sleep(ctx, time.Millisecond); err != nil {
			return err
		}
	}
}
