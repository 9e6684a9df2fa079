// Package promcompute exports the state of a compute.Device as Prometheus
// metrics.
package promcompute

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	cp "github.com/azargarov/compute"
)

// Collector reads a device on every scrape. It never touches the payload
// hot path: worker states are sampled with FillStatuses and event counts
// come from the latest operation's FillEventRows.
type Collector struct {
	device  *cp.Device
	metrics *cp.AtomicMetrics

	workers  *prometheus.Desc
	executed *prometheus.Desc
	progress *prometheus.Desc
	events   *prometheus.Desc

	dispatched *prometheus.Desc
	completed  *prometheus.Desc
	faulted    *prometheus.Desc
	units      *prometheus.Desc
}

// New returns a collector for d. metrics may be nil, in which case the
// operation counters are not exported.
func New(namespace string, d *cp.Device, metrics *cp.AtomicMetrics) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "compute", name), help, labels, nil)
	}
	return &Collector{
		device:  d,
		metrics: metrics,

		workers:  desc("workers", "Number of workers per execution state.", "state"),
		executed: desc("worker_executed_total", "Units processed by each worker.", "worker"),
		progress: desc("operation_progress", "Completion of the latest operation in [0, 1]."),
		events:   desc("operation_events", "Event counts of the latest operation.", "event"),

		dispatched: desc("operations_dispatched_total", "Operations started."),
		completed:  desc("operations_completed_total", "Operations finished without error."),
		faulted:    desc("operations_faulted_total", "Operations finished with errors."),
		units:      desc("executed_total", "Units processed by finished operations."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.workers
	ch <- c.executed
	ch <- c.progress
	ch <- c.events
	if c.metrics != nil {
		ch <- c.dispatched
		ch <- c.completed
		ch <- c.faulted
		ch <- c.units
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	states := make([]cp.State, c.device.Population())
	c.device.FillStatuses(states)
	counts := cp.CountStates(states)
	for s := cp.StateIdle; s <= cp.StateCompleted; s++ {
		ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(counts.Of(s)), s.String())
	}

	for _, w := range c.device.Workers() {
		ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue,
			float64(w.Executed()), strconv.Itoa(w.Index()))
	}

	if op := c.device.LatestOperation(); op != nil {
		ch <- prometheus.MustNewConstMetric(c.progress, prometheus.GaugeValue, op.Progress())

		var rows [cp.MaxLabels]cp.EventRow
		n := op.FillEventRows(rows[:])
		for _, r := range rows[:n] {
			ch <- prometheus.MustNewConstMetric(c.events, prometheus.GaugeValue, float64(r.Count), r.Label)
		}
	}

	if m := c.metrics; m != nil {
		ch <- prometheus.MustNewConstMetric(c.dispatched, prometheus.CounterValue, float64(m.Dispatched()))
		ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(m.Completed()))
		ch <- prometheus.MustNewConstMetric(c.faulted, prometheus.CounterValue, float64(m.Faulted()))
		ch <- prometheus.MustNewConstMetric(c.units, prometheus.CounterValue, float64(m.Executed()))
	}
}
