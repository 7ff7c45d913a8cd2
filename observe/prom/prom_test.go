package prom

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/rivergrove/nursery/nursery"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMetricsRecordsTaskGroupLifecycle(t *testing.T) {
	t.Parallel()
	m := New("nursery_test")
	reg := prometheus.NewRegistry()
	if err := reg.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}

	boom := errors.New("boom")
	err := nursery.Run(context.Background(), func(ctx context.Context) error {
		ctx, g := nursery.CreateTaskGroup(ctx, nursery.WithObserver(m))
		_ = g.Spawn(ctx, "ok", func(context.Context) error { return nil })
		_ = g.Spawn(ctx, "fails", func(context.Context) error { return boom })
		return g.Wait(ctx, nil)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the single failure unwrapped, got %v", err)
	}

	families, gatherErr := reg.Gather()
	if gatherErr != nil {
		t.Fatalf("gather: %v", gatherErr)
	}
	counters := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			counters[mf.GetName()] += counterOrSum(metric)
		}
	}
	if got := counters["nursery_test_tasks_started_total"]; got != 2 {
		t.Fatalf("expected 2 tasks started, got %v", got)
	}
	if got := counters["nursery_test_group_joins_total"]; got != 1 {
		t.Fatalf("expected 1 group join, got %v", got)
	}
	if got := counters["nursery_test_scopes_cancelled_total"]; got != 1 {
		t.Fatalf("expected the group's scope to have been cancelled once, got %v", got)
	}
}

func counterOrSum(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	default:
		return 0
	}
}
