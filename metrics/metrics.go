package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/livepeer/videogw/config"
)

// ClientMetrics is the generic shape for any outbound HTTP/object-store client:
// retries, failures and request duration, broken down by host and operation.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// KVStoreMetrics covers the chunked KV backend (§4.F).
type KVStoreMetrics struct {
	WriteDuration  *prometheus.HistogramVec
	ReadDuration   *prometheus.HistogramVec
	WriteFailures  *prometheus.CounterVec
	ChunkCount     *prometheus.HistogramVec
}

// CoalesceMetrics covers the request coalescer (§4.E).
type CoalesceMetrics struct {
	WaitDuration   prometheus.Histogram
	Joined         prometheus.Counter
	Leader         prometheus.Counter
	InFlightGauge  prometheus.Gauge
}

// CacheMetrics covers the cache orchestrator's own hit/miss/bypass bookkeeping
// (§4.G), independent of which layer (KV store vs. transform) served the request.
type CacheMetrics struct {
	Hits    *prometheus.CounterVec
	Misses  *prometheus.CounterVec
	Bypass  *prometheus.CounterVec
	Version *prometheus.CounterVec
}

// TransformMetrics covers the backend transform invoker (§4.J).
type TransformMetrics struct {
	RequestDuration *prometheus.HistogramVec
	FallbackCount   *prometheus.CounterVec
	ErrorCount      *prometheus.CounterVec
}

type GatewayMetrics struct {
	Version              *prometheus.CounterVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestDuration  *prometheus.SummaryVec

	ObjectStoreClient ClientMetrics
	TransformClient   ClientMetrics
	KVStore           KVStoreMetrics
	Coalesce          CoalesceMetrics
	Cache             CacheMetrics
	Transform         TransformMetrics
}

func NewMetrics() *GatewayMetrics {
	m := &GatewayMetrics{
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current Git SHA / Tag that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "A count of the http requests in flight",
		}),
		HTTPRequestDuration: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "http_request_duration_seconds",
			Help: "Latency of served requests broken up by status code",
		}, []string{"status_code", "version"}),

		ObjectStoreClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "object_store_retry_count",
				Help: "The number of retried object store requests",
			}, []string{"host", "operation", "bucket"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "object_store_failure_count",
				Help: "The total number of failed object store requests",
			}, []string{"host", "operation", "bucket"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "object_store_request_duration",
				Help:    "Time taken to send object store requests",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"host", "operation", "bucket"}),
		},

		TransformClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "transform_client_retry_count",
				Help: "The number of retries the last transform backend request needed",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "transform_client_failure_count",
				Help: "The total number of failed transform backend requests",
			}, []string{"host", "status_code"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "transform_client_request_duration",
				Help:    "Time taken for a transform backend request to return",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"host"}),
		},

		KVStore: KVStoreMetrics{
			WriteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kv_store_write_duration_seconds",
				Help:    "Time taken to write a full chunked entry, manifest included",
				Buckets: prometheus.DefBuckets,
			}, []string{"bucket"}),
			ReadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kv_store_read_duration_seconds",
				Help:    "Time taken to read an entry's manifest",
				Buckets: prometheus.DefBuckets,
			}, []string{"bucket"}),
			WriteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kv_store_write_failures_total",
				Help: "Chunk or manifest writes that failed after exhausting retries",
			}, []string{"bucket"}),
			ChunkCount: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kv_store_chunk_count",
				Help:    "Number of chunks a stored entry was split into",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			}, []string{"bucket"}),
		},

		Coalesce: CoalesceMetrics{
			WaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "coalesce_wait_duration_seconds",
				Help:    "Time a follower request spent waiting on an in-flight leader",
				Buckets: prometheus.DefBuckets,
			}),
			Joined: promauto.NewCounter(prometheus.CounterOpts{
				Name: "coalesce_joined_total",
				Help: "Requests that joined an already in-flight origin fetch",
			}),
			Leader: promauto.NewCounter(prometheus.CounterOpts{
				Name: "coalesce_leader_total",
				Help: "Requests that became the leader of a new in-flight entry",
			}),
			InFlightGauge: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "coalesce_in_flight_entries",
				Help: "Current number of distinct in-flight cache keys",
			}),
		},

		Cache: CacheMetrics{
			Hits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Requests served from the KV store without invoking the backend",
			}, []string{"origin"}),
			Misses: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Requests that required a backend transform invocation",
			}, []string{"origin"}),
			Bypass: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "cache_bypass_total",
				Help: "Requests that bypassed the cache entirely",
			}, []string{"origin", "reason"}),
			Version: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "cache_version_advance_total",
				Help: "Cache key version advances, i.e. forced invalidations",
			}, []string{"origin"}),
		},

		Transform: TransformMetrics{
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "transform_request_duration_seconds",
				Help:    "Time taken for a backend transform invocation to return",
				Buckets: prometheus.DefBuckets,
			}, []string{"origin", "status_code"}),
			FallbackCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "transform_fallback_total",
				Help: "Requests that fell back to serving the unmodified origin asset",
			}, []string{"origin", "reason"}),
			ErrorCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "transform_error_total",
				Help: "Transform invocations classified as an error",
			}, []string{"origin", "code"}),
		},
	}

	m.Version.WithLabelValues("videogw", config.Version).Inc()

	return m
}

var Metrics = NewMetrics()
