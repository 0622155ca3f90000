// Package metrics defines the engine's Prometheus instrumentation: event
// and workflow queue depth, dispatch latency, retries, and schedule fires.
// The teacher's own engine/infra/monitoring/metrics package is built on
// OpenTelemetry and wired through Temporal instrumentation this engine
// does not have; its naming convention (lowercase, underscore-separated,
// subsystem-prefixed names) is kept, realized directly on
// github.com/prometheus/client_golang since there is no otel collector in
// this architecture to justify the extra abstraction layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "synthframe"

// Outcome labels for ExecutionsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
)

// Metrics is the engine's full instrumentation surface. The zero value is
// not usable; construct with New.
type Metrics struct {
	EventQueueDepth      *prometheus.GaugeVec
	WorkflowQueuePending prometheus.Gauge
	WorkflowQueueRunning prometheus.Gauge
	ExecutionDuration    prometheus.Histogram
	ExecutionsTotal      *prometheus.CounterVec
	ScheduleFiresTotal    prometheus.Counter
	ActiveSchedules       prometheus.Gauge
}

// New builds every metric and registers them against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registerer across test runs.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "event_queue_depth",
			Help:      "Pending events per priority band.",
		}, []string{"band"}),
		WorkflowQueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "workflow_queue_pending",
			Help:      "Pending workflow queue items.",
		}),
		WorkflowQueueRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "workflow_queue_running",
			Help:      "In-flight workflow queue items.",
		}),
		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "execution_duration_seconds",
			Help:      "Time from workflow dequeue to terminal result.",
			Buckets:   prometheus.DefBuckets,
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "executions_total",
			Help:      "Workflow executions by terminal outcome.",
		}, []string{"outcome"}),
		ScheduleFiresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fires_total",
			Help:      "SCHEDULE_TRIGGERED events emitted.",
		}),
		ActiveSchedules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_schedules",
			Help:      "Currently active schedules.",
		}),
	}
	reg.MustRegister(
		m.EventQueueDepth,
		m.WorkflowQueuePending,
		m.WorkflowQueueRunning,
		m.ExecutionDuration,
		m.ExecutionsTotal,
		m.ScheduleFiresTotal,
		m.ActiveSchedules,
	)
	return m
}

// ObserveQueues records a snapshot of queue depths (§5 fairness and
// starvation are best understood by watching EventQueueDepth diverge
// across bands over time).
func (m *Metrics) ObserveQueues(high, normal, low, workflowPending, workflowRunning int) {
	if m == nil {
		return
	}
	m.EventQueueDepth.WithLabelValues("high").Set(float64(high))
	m.EventQueueDepth.WithLabelValues("normal").Set(float64(normal))
	m.EventQueueDepth.WithLabelValues("low").Set(float64(low))
	m.WorkflowQueuePending.Set(float64(workflowPending))
	m.WorkflowQueueRunning.Set(float64(workflowRunning))
}

// RecordExecution records one workflow execution's terminal outcome and
// wall-clock duration.
func (m *Metrics) RecordExecution(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.Observe(duration.Seconds())
}

// RecordScheduleFire increments the SCHEDULE_TRIGGERED counter.
func (m *Metrics) RecordScheduleFire() {
	if m == nil {
		return
	}
	m.ScheduleFiresTotal.Inc()
}

// SetActiveSchedules reports the current count of active schedules.
func (m *Metrics) SetActiveSchedules(n int) {
	if m == nil {
		return
	}
	m.ActiveSchedules.Set(float64(n))
}
