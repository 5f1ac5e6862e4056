package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a point-in-time snapshot of connection pool counters.
type PoolStats struct {
	Acquired        int32
	Idle            int32
	Total           int32
	Max             int32
	AcquireCount    int64
	EmptyAcquires   int64
	CanceledAcquire int64
	AcquireDuration time.Duration
}

type poolMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(PoolStats) float64
}

// PoolStatsCollector implements prometheus.Collector for pgxpool connection metrics.
type PoolStatsCollector struct {
	stats   func() PoolStats
	service string
	metrics []poolMetric
}

// NewPoolStatsCollector exports pgxpool statistics labelled with service.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	return newPoolStatsCollector(func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Acquired:        s.AcquiredConns(),
			Idle:            s.IdleConns(),
			Total:           s.TotalConns(),
			Max:             s.MaxConns(),
			AcquireCount:    s.AcquireCount(),
			EmptyAcquires:   s.EmptyAcquireCount(),
			CanceledAcquire: s.CanceledAcquireCount(),
			AcquireDuration: s.AcquireDuration(),
		}
	}, service)
}

func newPoolStatsCollector(stats func() PoolStats, service string) *PoolStatsCollector {
	labels := []string{"service"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, labels, nil)
	}
	gauge, counter := prometheus.GaugeValue, prometheus.CounterValue

	return &PoolStatsCollector{
		stats:   stats,
		service: service,
		metrics: []poolMetric{
			{desc("db_pool_acquired_connections", "Number of currently acquired connections"), gauge,
				func(s PoolStats) float64 { return float64(s.Acquired) }},
			{desc("db_pool_idle_connections", "Number of currently idle connections"), gauge,
				func(s PoolStats) float64 { return float64(s.Idle) }},
			{desc("db_pool_total_connections", "Total number of connections in the pool"), gauge,
				func(s PoolStats) float64 { return float64(s.Total) }},
			{desc("db_pool_max_connections", "Maximum number of connections allowed"), gauge,
				func(s PoolStats) float64 { return float64(s.Max) }},
			{desc("db_pool_acquire_count_total", "Total number of connection acquires"), counter,
				func(s PoolStats) float64 { return float64(s.AcquireCount) }},
			{desc("db_pool_empty_acquire_count_total", "Acquires that had to wait for a connection"), counter,
				func(s PoolStats) float64 { return float64(s.EmptyAcquires) }},
			{desc("db_pool_canceled_acquire_count_total", "Acquires canceled by their context"), counter,
				func(s PoolStats) float64 { return float64(s.CanceledAcquire) }},
			{desc("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections"), counter,
				func(s PoolStats) float64 { return s.AcquireDuration.Seconds() }},
		},
	}
}

// Describe sends the descriptors of all metrics to the provided channel.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect reads current pool statistics and sends them as Prometheus metrics.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s), c.service)
	}
}

// RegisterPoolMetrics registers a pool collector with the given registerer.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
