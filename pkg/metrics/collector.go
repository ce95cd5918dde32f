package metrics

import "time"

// StatusSource is the subset of Agent the Collector polls. Defined here,
// consumer-side, so metrics never imports pkg/agent.
type StatusSource interface {
	ExecutionCount() int
	SupervisorCount() int
	SupervisorStatusCounts() map[string]int
}

// Collector periodically snapshots agent-local gauges that aren't natural
// counters (executions held, supervisors active, supervisors by status).
type Collector struct {
	source StatusSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source StatusSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds until Stop is called.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ExecutionsTotal.Set(float64(c.source.ExecutionCount()))
	SupervisorsActive.Set(float64(c.source.SupervisorCount()))

	counts := c.source.SupervisorStatusCounts()
	ContainerStatusTotal.Reset()
	for status, n := range counts {
		ContainerStatusTotal.WithLabelValues(status).Set(float64(n))
	}
}
