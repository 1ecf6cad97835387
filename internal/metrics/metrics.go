// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestItemsTotal             *prometheus.CounterVec
	harvestExtractDurationSeconds *prometheus.HistogramVec
	harvestActiveWorkers          prometheus.Gauge
	harvestQueueDepth             prometheus.Gauge
	harvestItemsPerSecond         prometheus.Gauge
	discoveryPagesTotal           *prometheus.CounterVec
	discoveryItemsTotal           prometheus.Counter
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_items_total",
				Help: "Total number of work items processed, labeled by outcome and error kind.",
			},
			[]string{"status", "kind"},
		)

		harvestExtractDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_extract_duration_seconds",
				Help:    "Histogram of per-item extraction latencies, labeled by backend.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently running.",
			},
		)

		harvestQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_queue_depth",
				Help: "Work items still waiting in the queue.",
			},
		)

		harvestItemsPerSecond = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_items_per_second",
				Help: "Throughput of the most recent run.",
			},
		)

		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_pages_total",
				Help: "Sitemap index pages fetched, labeled by outcome.",
			},
			[]string{"status"},
		)

		discoveryItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_items_total",
				Help: "Product URLs discovered from sitemap indexes.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveItem records one finished work item.
func ObserveItem(backend, status, kind string, duration time.Duration) {
	Init()
	harvestItemsTotal.WithLabelValues(status, kind).Inc()
	harvestExtractDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvestActiveWorkers.Dec()
}

// SetQueueDepth publishes the number of queued items.
func SetQueueDepth(n int) {
	Init()
	harvestQueueDepth.Set(float64(n))
}

// SetThroughput publishes the items-per-second rate of a run.
func SetThroughput(itemsPerSecond float64) {
	Init()
	harvestItemsPerSecond.Set(itemsPerSecond)
}

// ObserveDiscoveryPage records the outcome of one sitemap page fetch.
func ObserveDiscoveryPage(status string, items int) {
	Init()
	discoveryPagesTotal.WithLabelValues(status).Inc()
	if items > 0 {
		discoveryItemsTotal.Add(float64(items))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
