package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExecutionsTotal is the number of jobs the agent currently holds a
	// durable Execution for, regardless of supervisor state.
	ExecutionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_agent_executions_total",
			Help: "Total number of durable executions held by the agent",
		},
	)

	// SupervisorsActive is the number of supervisors the agent currently
	// holds in memory.
	SupervisorsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_agent_supervisors_active",
			Help: "Number of supervisors currently held by the agent",
		},
	)

	// SupervisorsTotal counts every supervisor the factory has created
	// since process start.
	SupervisorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_supervisors_created_total",
			Help: "Total number of supervisors created",
		},
	)

	// PortAllocationFailuresTotal counts port allocation attempts that could
	// not be satisfied and were deferred to the next tick (one per pending
	// execution per tick).
	PortAllocationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_port_allocation_failures_total",
			Help: "Total number of port allocation attempts that failed and were deferred",
		},
	)

	// PersistenceFailuresTotal counts reconciliation ticks aborted because
	// the executions cell could not be persisted.
	PersistenceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_persistence_failures_total",
			Help: "Total number of executions-cell persistence failures",
		},
	)

	// Reconciler metrics.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_agent_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// Supervisor operation latency metrics.
	SupervisorStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_agent_supervisor_start_duration_seconds",
			Help:    "Time taken for a supervisor Start call to return in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SupervisorStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_agent_supervisor_stop_duration_seconds",
			Help:    "Time taken for a supervisor Stop call to return in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ContainerStatusTotal tracks the number of supervisors in each
	// lifecycle status, by status label.
	ContainerStatusTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warren_agent_container_status_total",
			Help: "Number of supervisors by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(SupervisorsActive)
	prometheus.MustRegister(SupervisorsTotal)
	prometheus.MustRegister(PortAllocationFailuresTotal)
	prometheus.MustRegister(PersistenceFailuresTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(SupervisorStartDuration)
	prometheus.MustRegister(SupervisorStopDuration)
	prometheus.MustRegister(ContainerStatusTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
