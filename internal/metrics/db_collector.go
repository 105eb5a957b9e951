package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DBStats is a driver-neutral snapshot of connection pool state.
type DBStats struct {
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	MaxConns      int32
	// WaitCount and WaitDuration are cumulative since the pool was opened.
	WaitCount    int64
	WaitDuration time.Duration
}

// DBPoolStatFunc returns database pool statistics without importing a driver.
type DBPoolStatFunc func() DBStats

// SQLStats adapts database/sql statistics. For a single-connection SQLite
// handle WaitCount counts every caller that queued behind the writer.
func SQLStats(s sql.DBStats) DBStats {
	return DBStats{
		TotalConns:    int32(s.OpenConnections),
		IdleConns:     int32(s.Idle),
		AcquiredConns: int32(s.InUse),
		MaxConns:      int32(s.MaxOpenConnections),
		WaitCount:     s.WaitCount,
		WaitDuration:  s.WaitDuration,
	}
}

type dbPoolCollector struct {
	statFunc DBPoolStatFunc

	totalDesc    *prometheus.Desc
	idleDesc     *prometheus.Desc
	acquiredDesc *prometheus.Desc
	maxDesc      *prometheus.Desc
	waitsDesc    *prometheus.Desc
	waitSecsDesc *prometheus.Desc
}

// NewDBPoolCollector creates a collector that exposes pool gauges and
// cumulative wait counters, labelled by storage driver.
func NewDBPoolCollector(driver string, statFunc DBPoolStatFunc) prometheus.Collector {
	labels := prometheus.Labels{"driver": driver}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, nil, labels)
	}
	return &dbPoolCollector{
		statFunc:     statFunc,
		totalDesc:    desc("jeton_db_pool_total_conns", "Total number of connections in the DB pool."),
		idleDesc:     desc("jeton_db_pool_idle_conns", "Number of idle connections in the DB pool."),
		acquiredDesc: desc("jeton_db_pool_acquired_conns", "Number of acquired connections in the DB pool."),
		maxDesc:      desc("jeton_db_pool_max_conns", "Maximum number of connections the DB pool may open."),
		waitsDesc:    desc("jeton_db_pool_waits_total", "Number of acquires that had to wait for a free connection."),
		waitSecsDesc: desc("jeton_db_pool_wait_seconds_total", "Total time spent waiting for a free connection."),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.idleDesc
	ch <- c.acquiredDesc
	ch <- c.maxDesc
	ch <- c.waitsDesc
	ch <- c.waitSecsDesc
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.statFunc()
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(s.AcquiredConns))
	ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(c.waitsDesc, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitSecsDesc, prometheus.CounterValue, s.WaitDuration.Seconds())
}
