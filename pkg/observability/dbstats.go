package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// DBPoolCollector exports database/sql pool statistics, one series per pool.
type DBPoolCollector struct {
	stats func() map[string]sql.DBStats

	maxOpen      *prometheus.Desc
	open         *prometheus.Desc
	inUse        *prometheus.Desc
	idle         *prometheus.Desc
	waitCount    *prometheus.Desc
	waitDuration *prometheus.Desc
}

// NewDBPoolCollector creates a collector reading stats on every scrape.
func NewDBPoolCollector(stats func() map[string]sql.DBStats) *DBPoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("taskhub_db_pool_"+name, help, []string{"pool"}, nil)
	}
	return &DBPoolCollector{
		stats:        stats,
		maxOpen:      desc("max_open_connections", "Maximum number of open connections"),
		open:         desc("open_connections", "Established connections, in use and idle"),
		inUse:        desc("in_use_connections", "Connections currently in use"),
		idle:         desc("idle_connections", "Idle connections"),
		waitCount:    desc("wait_count_total", "Connections waited for"),
		waitDuration: desc("wait_duration_seconds_total", "Time blocked waiting for a connection"),
	}
}

// Describe implements prometheus.Collector
func (c *DBPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpen
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
}

// Collect implements prometheus.Collector
func (c *DBPoolCollector) Collect(ch chan<- prometheus.Metric) {
	for pool, s := range c.stats() {
		ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(s.MaxOpenConnections), pool)
		ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.OpenConnections), pool)
		ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse), pool)
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle), pool)
		ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount), pool)
		ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, s.WaitDuration.Seconds(), pool)
	}
}
