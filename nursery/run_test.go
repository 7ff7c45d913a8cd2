package nursery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunPropagatesParentContextCancellation(t *testing.T) {
	t.Parallel()
	parentCtx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Run(parentCtx, func(ctx context.Context) error {
		return Sleep(ctx, 2*time.Second)
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled once the parent context was cancelled, got %v", err)
	}
}

func TestCheckpointOutsideRunPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected Checkpoint to panic outside nursery.Run")
		}
	}()
	_ = Checkpoint(context.Background())
}

func TestWaitAllTasksBlocked(t *testing.T) {
	t.Parallel()
	err := Run(context.Background(), func(ctx context.Context) error {
		ctx, g := CreateTaskGroup(ctx)
		_ = g.Spawn(ctx, "parked", func(ctx context.Context) error {
			return Sleep(ctx, 100*time.Millisecond)
		})
		if err := WaitAllTasksBlocked(ctx); err != nil {
			return err
		}
		return g.Wait(ctx, nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSleepZeroIsStillACheckpoint(t *testing.T) {
	t.Parallel()
	err := Run(context.Background(), func(ctx context.Context) error {
		ctx, scope := OpenCancelScope(ctx, time.Time{}, false)
		scope.Cancel()
		bodyErr := Sleep(ctx, 0)
		return scope.Close(bodyErr)
	})
	if err != nil {
		t.Fatalf("expected the cancellation to be absorbed at its own scope, got %v", err)
	}
}
