package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_ObserveQueues(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveQueues(2, 5, 1, 3, 1)

	var high dto.Metric
	require.NoError(t, m.EventQueueDepth.WithLabelValues("high").Write(&high))
	assert.InDelta(t, 2, high.GetGauge().GetValue(), 0.001)

	var normal dto.Metric
	require.NoError(t, m.EventQueueDepth.WithLabelValues("normal").Write(&normal))
	assert.InDelta(t, 5, normal.GetGauge().GetValue(), 0.001)

	assert.InDelta(t, 3, gaugeValue(t, m.WorkflowQueuePending), 0.001)
	assert.InDelta(t, 1, gaugeValue(t, m.WorkflowQueueRunning), 0.001)
}

func TestMetrics_RecordExecution(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordExecution(OutcomeSuccess, 50*time.Millisecond)
	m.RecordExecution(OutcomeFailed, 10*time.Millisecond)

	var success dto.Metric
	require.NoError(t, m.ExecutionsTotal.WithLabelValues(OutcomeSuccess).Write(&success))
	assert.InDelta(t, 1, success.GetCounter().GetValue(), 0.001)

	var failed dto.Metric
	require.NoError(t, m.ExecutionsTotal.WithLabelValues(OutcomeFailed).Write(&failed))
	assert.InDelta(t, 1, failed.GetCounter().GetValue(), 0.001)
}

func TestMetrics_ScheduleGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordScheduleFire()
	m.RecordScheduleFire()
	m.SetActiveSchedules(4)

	assert.InDelta(t, 2, counterValue(t, m.ScheduleFiresTotal), 0.001)
	assert.InDelta(t, 4, gaugeValue(t, m.ActiveSchedules), 0.001)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQueues(1, 1, 1, 1, 1)
		m.RecordExecution(OutcomeSuccess, time.Millisecond)
		m.RecordScheduleFire()
		m.SetActiveSchedules(1)
	})
}
