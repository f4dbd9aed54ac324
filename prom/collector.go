// Package prom exports dispatcher statistics to Prometheus.
package prom

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hadb-go/hadb/dispatcher"
)

// DefaultNamespace prefixes metric names when none is given.
const DefaultNamespace = "hadb"

// StatsSource is implemented by *dispatcher.Dispatcher.
type StatsSource interface {
	Stats() dispatcher.Stats
}

type metric struct {
	desc  *prom.Desc
	typ   prom.ValueType
	value func(s dispatcher.Stats) float64
}

// Collector is a prometheus.Collector reading a dispatcher snapshot on
// every scrape. Every metric carries the dispatcher id as a label.
type Collector struct {
	src     StatsSource
	metrics []metric
}

var _ prom.Collector = (*Collector)(nil)

func NewCollector(src StatsSource, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	newMetric := func(name, help string, typ prom.ValueType, value func(s dispatcher.Stats) float64) metric {
		return metric{
			desc:  prom.NewDesc(prom.BuildFQName(namespace, "dispatcher", name), help, []string{"dispatcher"}, nil),
			typ:   typ,
			value: value,
		}
	}

	return &Collector{
		src: src,
		metrics: []metric{
			newMetric("max_connections", "Connection ceiling.", prom.GaugeValue,
				func(s dispatcher.Stats) float64 { return float64(s.MaxConn) }),
			newMetric("connections_idle", "Idle connections.", prom.GaugeValue,
				func(s dispatcher.Stats) float64 { return float64(s.Idle) }),
			newMetric("connections_active", "Connections with a query in flight.", prom.GaugeValue,
				func(s dispatcher.Stats) float64 { return float64(s.Active) }),
			newMetric("connections_pinned", "Connections pinned by a transaction.", prom.GaugeValue,
				func(s dispatcher.Stats) float64 { return float64(s.Pinned) }),
			newMetric("queries_queued", "Queries waiting for a connection.", prom.GaugeValue,
				func(s dispatcher.Stats) float64 { return float64(s.Queued) }),
			newMetric("results_ready", "Results not retrieved yet.", prom.GaugeValue,
				func(s dispatcher.Stats) float64 { return float64(s.Ready) }),
			newMetric("connections_opened_total", "Connections opened.", prom.CounterValue,
				func(s dispatcher.Stats) float64 { return float64(s.Opened) }),
			newMetric("queries_total", "Queries submitted.", prom.CounterValue,
				func(s dispatcher.Stats) float64 { return float64(s.Queries) }),
			newMetric("queries_completed_total", "Queries completed successfully.", prom.CounterValue,
				func(s dispatcher.Stats) float64 { return float64(s.Completed) }),
			newMetric("queries_failed_total", "Queries failed.", prom.CounterValue,
				func(s dispatcher.Stats) float64 { return float64(s.Failed) }),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	s := c.src.Stats()
	for _, m := range c.metrics {
		ch <- prom.MustNewConstMetric(m.desc, m.typ, m.value(s), s.ID)
	}
}
