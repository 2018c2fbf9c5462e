package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolCollector exports pgxpool.Stat on every scrape.
type poolCollector struct {
	stat    func() *pgxpool.Stat
	service string

	acquired, idle, total, limit   *prometheus.Desc
	acquires, acquireWait, starved *prometheus.Desc
}

func newPoolCollector(stat func() *pgxpool.Stat, service string) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil)
	}
	return &poolCollector{
		stat:        stat,
		service:     service,
		acquired:    desc("acquired_connections", "Connections currently checked out."),
		idle:        desc("idle_connections", "Connections currently idle."),
		total:       desc("total_connections", "Connections currently open."),
		limit:       desc("max_connections", "Configured connection ceiling."),
		acquires:    desc("acquire_count_total", "Successful connection acquires."),
		acquireWait: desc("acquire_duration_seconds_total", "Time spent waiting to acquire a connection."),
		starved:     desc("empty_acquire_count_total", "Acquires that found the pool empty and had to wait."),
	}
}

func (c *poolCollector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{c.acquired, c.idle, c.total, c.limit, c.acquires, c.acquireWait, c.starved}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, c.service)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, c.service)
	}

	gauge(c.acquired, float64(s.AcquiredConns()))
	gauge(c.idle, float64(s.IdleConns()))
	gauge(c.total, float64(s.TotalConns()))
	gauge(c.limit, float64(s.MaxConns()))
	counter(c.acquires, float64(s.AcquireCount()))
	counter(c.acquireWait, s.AcquireDuration().Seconds())
	counter(c.starved, float64(s.EmptyAcquireCount()))
}

// RegisterPoolMetrics exports the pool's connection statistics.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return reg.Register(newPoolCollector(pool.Stat, service))
}
