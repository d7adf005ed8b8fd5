package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatter is implemented by *pgxpool.Pool.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

type gaugeDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics as Prometheus metrics.
type PoolStatsCollector struct {
	pool    PoolStatter
	service string
	metrics []gaugeDesc
}

// NewPoolStatsCollector builds a collector for pool labelled with service.
func NewPoolStatsCollector(pool PoolStatter, service string) *PoolStatsCollector {
	labels := []string{"service"}
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, labels, nil)
	}
	g, c := prometheus.GaugeValue, prometheus.CounterValue

	return &PoolStatsCollector{
		pool:    pool,
		service: service,
		metrics: []gaugeDesc{
			{d("acquired_connections", "Number of currently acquired connections"), g,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{d("idle_connections", "Number of currently idle connections"), g,
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{d("total_connections", "Total number of connections in the pool"), g,
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
			{d("max_connections", "Maximum number of connections allowed"), g,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{d("constructing_connections", "Number of connections currently being constructed"), g,
				func(s *pgxpool.Stat) float64 { return float64(s.ConstructingConns()) }},
			{d("acquire_count_total", "Total number of connection acquires"), c,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{d("acquire_duration_seconds_total", "Total time spent acquiring connections in seconds"), c,
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{d("canceled_acquire_count_total", "Total number of canceled connection acquires"), c,
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
			{d("empty_acquire_count_total", "Total number of acquires that had to wait for a connection"), c,
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{d("new_connections_total", "Total number of new connections created"), c,
				func(s *pgxpool.Stat) float64 { return float64(s.NewConnsCount()) }},
			{d("max_lifetime_destroy_total", "Total connections destroyed due to max lifetime"), c,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxLifetimeDestroyCount()) }},
			{d("max_idle_destroy_total", "Total connections destroyed due to max idle time"), c,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxIdleDestroyCount()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a pool collector with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool PoolStatter, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
