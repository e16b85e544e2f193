package pgdb

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tabledger_queries_total",
		Help: "Total number of statements executed",
	})

	acquireRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tabledger_connection_acquire_retries_total",
		Help: "Total number of retried pool acquisitions",
	})

	acquisitionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tabledger_connection_acquisition_failures_total",
		Help: "Total number of pool acquisitions that exhausted their retries",
	})

	pressureEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tabledger_capacity_pressure_events_total",
		Help: "Total number of capacity pressure signals",
	})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tabledger_connection_evictions_total",
		Help: "Total number of connections evicted instead of reused",
	})
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		acquireRetriesTotal,
		acquisitionFailuresTotal,
		pressureEventsTotal,
		evictionsTotal,
	)
}

var poolMetricsOnce sync.Once

// registerPoolMetrics exports live pool counters for the process-wide
// pool. Registered once, on first pool creation.
func registerPoolMetrics(pool *pgxpool.Pool) {
	poolMetricsOnce.Do(func() {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "tabledger_pool_total_conns",
				Help: "Current number of connections in the pool",
			}, func() float64 {
				return float64(pool.Stat().TotalConns())
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "tabledger_pool_idle_conns",
				Help: "Current number of idle connections in the pool",
			}, func() float64 {
				return float64(pool.Stat().IdleConns())
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "tabledger_pool_acquired_conns",
				Help: "Current number of acquired connections",
			}, func() float64 {
				return float64(pool.Stat().AcquiredConns())
			}),
		)
	})
}
