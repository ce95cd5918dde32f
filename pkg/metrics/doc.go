/*
Package metrics provides Prometheus metrics collection and exposition for the
warren agent.

The metrics package defines and registers every agent metric using the
Prometheus client library, exposed via HTTP for scraping by a Prometheus
server. Metrics cover the reconciliation loop itself (cycle duration, cycle
count), the supervisor population the agent holds (active count, created
count, lifecycle status), and the two failure modes reconciliation can hit
(port allocation, persistence).

# Metrics Catalog

warren_agent_executions_total:
  - Type: Gauge
  - Description: Number of durable executions currently held

warren_agent_supervisors_active:
  - Type: Gauge
  - Description: Number of supervisors currently held in memory

warren_agent_supervisors_created_total:
  - Type: Counter
  - Description: Total number of supervisors created since process start

warren_agent_container_status_total{status}:
  - Type: GaugeVec
  - Description: Number of supervisors by lifecycle status
  - Labels: status (pulling_image, starting, running, stopping, stopped, failed)

warren_agent_port_allocation_failures_total:
  - Type: Counter
  - Description: Port allocation attempts that failed and were deferred

warren_agent_persistence_failures_total:
  - Type: Counter
  - Description: Executions-cell persistence failures

warren_agent_reconciliation_duration_seconds:
  - Type: Histogram
  - Description: Reconciliation cycle duration

warren_agent_reconciliation_cycles_total:
  - Type: Counter
  - Description: Total reconciliation cycles completed

warren_agent_supervisor_start_duration_seconds:
  - Type: Histogram
  - Description: Time taken for a supervisor Start call to return

warren_agent_supervisor_stop_duration_seconds:
  - Type: Histogram
  - Description: Time taken for a supervisor Stop call to return

# Usage

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.ReconciliationDuration)

	metrics.SupervisorsTotal.Inc()
	metrics.PortAllocationFailuresTotal.Inc()

A Collector polls an Agent for the gauges that aren't naturally updated
inline with the reconciliation loop:

	collector := metrics.NewCollector(agnt)
	collector.Start()
	defer collector.Stop()

# Health and readiness

health.go exposes health, readiness, and liveness handlers independent of
the Prometheus registry; cmd/warren-agent mounts them at /healthz, /readyz,
and /livez. RegisterComponent/UpdateComponent let any part of the
agent report its own health; readiness additionally requires "model",
"executions_cell", and "supervisor_factory" to be registered and healthy.

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
