// Package metrics collects rule sync counters in a dedicated Prometheus
// registry. The CLI is short-lived, so the registry is flushed to a
// node_exporter textfile instead of being scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rulesync"

// Operation labels.
const (
	OpMerge = "merge"
	OpAdd   = "add"
)

// Metrics records outcomes of server writes and merges.
type Metrics struct {
	registry   *prometheus.Registry
	writes     *prometheus.CounterVec
	duplicates prometheus.Counter
	stale      prometheus.Counter
	merged     prometheus.Gauge
}

// New builds a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_writes_total",
			Help:      "Rule list writes issued to filtering servers.",
		}, []string{"op", "result"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_rules_total",
			Help:      "Rule additions skipped because the server already had the rule.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_servers_total",
			Help:      "Servers skipped during a merge because they had no cached rules.",
		}),
		merged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_rules",
			Help:      "Number of rules in the most recent merged set.",
		}),
	}
	m.registry.MustRegister(m.writes, m.duplicates, m.stale, m.merged)
	return m
}

// ObserveWrite counts one server write for op.
func (m *Metrics) ObserveWrite(op string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.writes.WithLabelValues(op, result).Inc()
}

// ObserveDuplicate counts one skipped duplicate add.
func (m *Metrics) ObserveDuplicate() { m.duplicates.Inc() }

// ObserveMerge records the size of a merged set and how many servers were stale.
func (m *Metrics) ObserveMerge(rules, stale int) {
	m.merged.Set(float64(rules))
	m.stale.Add(float64(stale))
}

// WriteTextfile writes the current metric values to path in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
