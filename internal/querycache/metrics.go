package querycache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the query cache.
type Metrics struct {
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
	Size           prometheus.Gauge
}

// NewMetrics registers the cache metrics once per process.
//
// Metrics:
//   - ragvisor_querycache_hits_total
//   - ragvisor_querycache_misses_total
//   - ragvisor_querycache_evictions_total
//   - ragvisor_querycache_size
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "ragvisor",
				Subsystem: "querycache",
				Name:      "hits_total",
				Help:      "Total number of query cache hits",
			}),
			MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "ragvisor",
				Subsystem: "querycache",
				Name:      "misses_total",
				Help:      "Total number of query cache misses",
			}),
			EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "ragvisor",
				Subsystem: "querycache",
				Name:      "evictions_total",
				Help:      "Total number of entries evicted by capacity",
			}),
			Size: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "ragvisor",
				Subsystem: "querycache",
				Name:      "size",
				Help:      "Current number of cached answers",
			}),
		}
	})
	return globalMetrics
}
