// Package telemetry exposes Prometheus collectors for the acquisition service.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchPagesTotal              *prometheus.CounterVec
	fetchBytesTotal              *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	acquisitionsTotal            *prometheus.CounterVec
	acquisitionPhasesTotal       *prometheus.CounterVec
	acquisitionPhaseDurationSecs *prometheus.HistogramVec
	cacheEventsTotal             *prometheus.CounterVec
	discoveryCandidatesTotal     *prometheus.CounterVec
	rateLimitDelaysSeconds       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permitscout_fetch_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permitscout_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
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

		acquisitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permitscout_acquisitions_total",
				Help: "Total number of acquisition requests processed, labeled by status.",
			},
			[]string{"status"},
		)

		acquisitionPhasesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permitscout_acquisition_phases_total",
				Help: "Total number of pipeline phase executions, labeled by phase and status.",
			},
			[]string{"phase", "status"},
		)

		acquisitionPhaseDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permitscout_acquisition_phase_duration_seconds",
				Help:    "Histogram of pipeline phase durations, labeled by phase.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"phase"},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permitscout_cache_events_total",
				Help: "Total cache events, labeled by backend and event (hit, miss, expired, evicted).",
			},
			[]string{"backend", "event"},
		)

		discoveryCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permitscout_discovery_candidates_total",
				Help: "Total discovery candidate URLs probed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permitscout_rate_limit_delays_seconds",
				Help:    "Histogram of politeness wait durations, labeled by domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch metrics for one page.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	fetchPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAcquisition increments the acquisition counter for the given status.
func ObserveAcquisition(status string) {
	acquisitionsTotal.WithLabelValues(status).Inc()
}

// ObservePhase records one pipeline phase execution.
func ObservePhase(phase, status string, duration time.Duration) {
	acquisitionPhasesTotal.WithLabelValues(phase, status).Inc()
	acquisitionPhaseDurationSecs.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveCacheEvent increments the cache event counter.
func ObserveCacheEvent(backend, event string) {
	cacheEventsTotal.WithLabelValues(backend, event).Inc()
}

// ObserveDiscovery increments the discovery candidate counter.
func ObserveDiscovery(outcome string) {
	discoveryCandidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
