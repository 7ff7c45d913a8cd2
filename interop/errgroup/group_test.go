package errgroup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rivergrove/nursery/nursery"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWithContextHappy(t *testing.T) {
	t.Parallel()
	err := nursery.Run(context.Background(), func(ctx context.Context) error {
		g, gctx := WithContext(ctx)
		_ = gctx
		g.Go(func() error { return nil })
		g.Go(func() error { time.Sleep(10 * time.Millisecond); return nil })
		return g.Wait()
	})
	require.NoError(t, err)
}

func TestWithContextErrorCancelsSiblings(t *testing.T) {
	t.Parallel()
	var siblingObservedDone bool
	err := nursery.Run(context.Background(), func(ctx context.Context) error {
		g, gctx := WithContext(ctx)
		g.Go(func() error { return errors.New("boom") })
		g.Go(func() error {
			<-gctx.Done()
			siblingObservedDone = true
			return nil
		})
		return g.Wait()
	})
	assert.Error(t, err)
	assert.True(t, siblingObservedDone, "expected the sibling to observe gctx.Done()")
}

func TestWithContextAggregatesFailures(t *testing.T) {
	t.Parallel()
	errA := errors.New("a")
	errB := errors.New("b")
	err := nursery.Run(context.Background(), func(ctx context.Context) error {
		g, _ := WithContext(ctx)
		g.Go(func() error {
			_ = nursery.WaitAllTasksBlocked(ctx)
			return errA
		})
		g.Go(func() error { return errB })
		return g.Wait()
	})
	var eg *nursery.ExceptionGroup
	require.ErrorAs(t, err, &eg)
	assert.GreaterOrEqual(t, len(eg.Errors()), 1)
}
