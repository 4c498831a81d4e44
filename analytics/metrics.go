package analytics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

var stepDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var _ Sink = new(MetricsSink)

type MetricsSink struct {
	EventsTotal      *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	StepResultsTotal *prometheus.CounterVec
}

// NewMetricsSink creates the instruments and registers them with reg.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	m := &MetricsSink{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowfirst_events_total",
			Help: "Total number of execution events.",
		}, []string{"scope", "event"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowfirst_step_duration_seconds",
			Help:    "Step execution duration in seconds, retries included.",
			Buckets: stepDurationBuckets,
		}, []string{"service"}),
		StepResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowfirst_step_results_total",
			Help: "Total number of step executions by result.",
		}, []string{"service", "result"}),
	}
	reg.MustRegister(m.EventsTotal, m.StepDuration, m.StepResultsTotal)
	return m
}

func (m *MetricsSink) Emit(ctx context.Context, scope string, name string, payload map[string]any) {
	m.EventsTotal.WithLabelValues(scope, name).Inc()
}

func (m *MetricsSink) RecordStat(ctx context.Context, sample StatSample) {
	result := "success"
	if !sample.Success {
		result = "failure"
	}
	m.StepDuration.WithLabelValues(sample.ServiceKey).Observe(sample.Duration.Seconds())
	m.StepResultsTotal.WithLabelValues(sample.ServiceKey, result).Inc()
}
