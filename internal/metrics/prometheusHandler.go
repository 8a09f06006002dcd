package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var documentsIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "documents_indexed_total",
	Help: "Number of documents indexed since start",
})

var searchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "search_cache_hits_total",
	Help: "Search responses served from cache",
})

var searchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "search_cache_misses_total",
	Help: "Search requests that went to the engine",
})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func IncrementDocumentsIndexed() {
	documentsIndexedTotal.Inc()
}

func SearchCacheHit() {
	searchCacheHits.Inc()
}

func SearchCacheMiss() {
	searchCacheMisses.Inc()
}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "process_request_duration_seconds",
	Help:    "Total time spent handling a request.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30},
}, []string{"path"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureRequestMetrics(path string, timeElapsed time.Duration) {
	requestDuration.WithLabelValues(path).Observe(timeElapsed.Seconds())
}
