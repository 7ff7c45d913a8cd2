// Package prom adapts nursery's Observer lifecycle hooks to Prometheus
// collectors, so task and scope lifecycle counters land in instruments
// client_golang can actually scrape.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rivergrove/nursery/nursery"
)

// Metrics is a prometheus.Collector that also implements nursery.Observer,
// so it can be registered with a prometheus.Registerer and handed straight
// to nursery.WithObserver in the same line.
type Metrics struct {
	tasksStarted    prometheus.Counter
	tasksFinished   *prometheus.CounterVec
	tasksPanicked   prometheus.Counter
	taskDuration    prometheus.Histogram
	scopesCreated   prometheus.Counter
	scopesCancelled prometheus.Counter
	joins           prometheus.Counter
	joinFailures    prometheus.Histogram
	joinWait        prometheus.Histogram
}

var _ nursery.Observer = (*Metrics)(nil)
var _ prometheus.Collector = (*Metrics)(nil)

// New returns a Metrics observer whose series are namespaced under ns
// (e.g. "nursery"). Callers must register it with a prometheus.Registerer.
func New(ns string) *Metrics {
	return &Metrics{
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_started_total",
			Help: "Number of tasks spawned into a task group.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_finished_total",
			Help: "Number of tasks that finished, partitioned by outcome.",
		}, []string{"outcome"}),
		tasksPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_panicked_total",
			Help: "Number of tasks whose body panicked.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "task_duration_seconds",
			Help:    "Wall time a spawned task's body ran before returning.",
			Buckets: prometheus.DefBuckets,
		}),
		scopesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "scopes_created_total",
			Help: "Number of task-group cancel scopes opened.",
		}),
		scopesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "scopes_cancelled_total",
			Help: "Number of task-group cancel scopes that were cancelled.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "group_joins_total",
			Help: "Number of task-group Wait calls that completed.",
		}),
		joinFailures: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "group_join_failures",
			Help:    "Number of failures aggregated by a single group join.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
		joinWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "group_join_wait_seconds",
			Help:    "Time a task group's Wait spent blocked on its children.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.tasksStarted.Describe(ch)
	m.tasksFinished.Describe(ch)
	m.tasksPanicked.Describe(ch)
	m.taskDuration.Describe(ch)
	m.scopesCreated.Describe(ch)
	m.scopesCancelled.Describe(ch)
	m.joins.Describe(ch)
	m.joinFailures.Describe(ch)
	m.joinWait.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.tasksStarted.Collect(ch)
	m.tasksFinished.Collect(ch)
	m.tasksPanicked.Collect(ch)
	m.taskDuration.Collect(ch)
	m.scopesCreated.Collect(ch)
	m.scopesCancelled.Collect(ch)
	m.joins.Collect(ch)
	m.joinFailures.Collect(ch)
	m.joinWait.Collect(ch)
}

// ScopeCreated records a cancel scope opening.
func (m *Metrics) ScopeCreated(_ context.Context) {
	m.scopesCreated.Inc()
}

// ScopeCancelled records a cancel scope being cancelled.
func (m *Metrics) ScopeCancelled(_ context.Context, _ error) {
	m.scopesCancelled.Inc()
}

// GroupJoined records a completed task-group join, its wait time, and the
// number of failures it aggregated.
func (m *Metrics) GroupJoined(_ context.Context, wait time.Duration, failures int) {
	m.joins.Inc()
	m.joinWait.Observe(wait.Seconds())
	m.joinFailures.Observe(float64(failures))
}

// TaskStarted records a spawned task beginning to run.
func (m *Metrics) TaskStarted(_ context.Context, _ string) {
	m.tasksStarted.Inc()
}

// TaskFinished records a spawned task's outcome and duration.
func (m *Metrics) TaskFinished(_ context.Context, _ string, dur time.Duration, err error, panicked bool) {
	outcome := "ok"
	switch {
	case panicked:
		outcome = "panic"
		m.tasksPanicked.Inc()
	case err != nil:
		outcome = "error"
	}
	m.tasksFinished.WithLabelValues(outcome).Inc()
	m.taskDuration.Observe(dur.Seconds())
}
