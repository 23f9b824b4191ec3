package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the prometheus collectors SPEC_FULL.md's observability
// expansion names: admission-semaphore occupancy, dispatch latency, and
// memory-actor queue depth / dropped-event counts.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPDispatchDuration  *prometheus.HistogramVec
	CLIDispatchDuration   *prometheus.HistogramVec
	AsyncDispatchDuration *prometheus.HistogramVec

	SemaphoreOccupancy *prometheus.GaugeVec

	MemoryQueueDepth   prometheus.Gauge
	MemoryDroppedTotal prometheus.Counter

	ReviewDuration prometheus.Histogram
}

// NewMetrics constructs and registers every collector against a fresh
// registry, so callers never share state with prometheus's global default
// registry (tests construct their own Metrics freely).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		HTTPDispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "squall_http_dispatch_duration_seconds",
			Help:    "HTTP dispatch call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
		CLIDispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "squall_cli_dispatch_duration_seconds",
			Help:    "CLI dispatch call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
		AsyncDispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "squall_async_dispatch_duration_seconds",
			Help:    "Async-poll dispatch call duration in seconds, launch to terminal state.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"provider", "outcome"}),
		SemaphoreOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "squall_admission_semaphore_occupancy",
			Help: "Current permits held per backend class.",
		}, []string{"class"}),
		MemoryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "squall_memory_actor_queue_depth",
			Help: "Number of commands currently queued to the memory actor.",
		}),
		MemoryDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "squall_memory_actor_dropped_events_total",
			Help: "Events dropped by the memory actor due to a full command queue.",
		}),
		ReviewDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "squall_review_duration_seconds",
			Help:    "Wall-clock duration of a full review fan-out, selection to persistence.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	reg.MustRegister(
		m.HTTPDispatchDuration,
		m.CLIDispatchDuration,
		m.AsyncDispatchDuration,
		m.SemaphoreOccupancy,
		m.MemoryQueueDepth,
		m.MemoryDroppedTotal,
		m.ReviewDuration,
	)

	return m
}
