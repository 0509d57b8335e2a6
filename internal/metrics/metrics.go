// Package metrics exposes Prometheus collectors for the lookup service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	lookupJobsTotal            *prometheus.CounterVec
	galleryPagesScannedTotal   prometheus.Counter
	winnerProjectsScrapedTotal prometheus.Counter
	activeSubscribers          prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hackaplan_fetch_requests_total",
				Help: "Total outbound fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hackaplan_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"outcome"},
		)

		lookupJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hackaplan_lookup_jobs_total",
				Help: "Total lookup jobs reaching a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		galleryPagesScannedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hackaplan_gallery_pages_scanned_total",
				Help: "Total gallery pages scanned across all crawls.",
			},
		)

		winnerProjectsScrapedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hackaplan_winner_projects_scraped_total",
				Help: "Total winner project pages scraped and kept.",
			},
		)

		activeSubscribers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hackaplan_active_subscribers",
				Help: "Number of live progress-event subscribers.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hackaplan_http_requests_total",
				Help: "Total inbound HTTP requests, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hackaplan_http_request_duration_seconds",
				Help:    "Histogram of inbound HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one outbound fetch attempt.
func ObserveFetch(outcome string, duration time.Duration) {
	if fetchRequestsTotal == nil {
		return
	}
	fetchRequestsTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveLookup increments the terminal-status counter for lookup jobs.
func ObserveLookup(status string) {
	if lookupJobsTotal == nil {
		return
	}
	lookupJobsTotal.WithLabelValues(status).Inc()
}

// ObserveGalleryPage counts one scanned gallery page.
func ObserveGalleryPage() {
	if galleryPagesScannedTotal == nil {
		return
	}
	galleryPagesScannedTotal.Inc()
}

// ObserveWinnerScraped counts one kept winner project.
func ObserveWinnerScraped() {
	if winnerProjectsScrapedTotal == nil {
		return
	}
	winnerProjectsScrapedTotal.Inc()
}

// IncSubscribers increments the live subscriber gauge.
func IncSubscribers() {
	if activeSubscribers == nil {
		return
	}
	activeSubscribers.Inc()
}

// DecSubscribers decrements the live subscriber gauge.
func DecSubscribers() {
	if activeSubscribers == nil {
		return
	}
	activeSubscribers.Dec()
}

// ObserveHTTPRequest records one inbound HTTP request.
func ObserveHTTPRequest(method, route, code string, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
