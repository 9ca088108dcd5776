// Package metrics exposes Prometheus collectors for the scraping service.
package metrics

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

// Scrape outcomes used as the status label.
const (
	OutcomeSuccess         = "success"
	OutcomeCanceled        = "canceled"
	OutcomeLaunchError     = "launch_error"
	OutcomeNavigationError = "navigation_error"
	OutcomeExtractError    = "extract_error"
)

// NoButton labels scrapes where no add-to-cart selector matched.
const NoButton = "none"

var (
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	fontsPerPage               prometheus.Histogram
	buttonMatchesTotal         *prometheus.CounterVec
	browserSessionsActive      prometheus.Gauge
	scrapeAdmissionWaitSeconds prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopstyle_scrapes_total",
				Help: "Total number of scrapes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopstyle_scrape_duration_seconds",
				Help:    "Histogram of end-to-end scrape latencies, labeled by outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		)

		fontsPerPage = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shopstyle_fonts_per_page",
				Help:    "Number of distinct font families reported per successful scrape.",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
		)

		buttonMatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopstyle_button_matches_total",
				Help: "Total add-to-cart button lookups, labeled by the winning selector.",
			},
			[]string{"selector"},
		)

		browserSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopstyle_browser_sessions_active",
				Help: "Number of browser processes currently open.",
			},
		)

		scrapeAdmissionWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shopstyle_scrape_admission_wait_seconds",
				Help:    "Histogram of time spent waiting for a browser slot.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid. The result is unbounded: use it
// in logs, never as a label value.
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

// ObserveScrape records the outcome and latency of one scrape.
func ObserveScrape(outcome string, duration time.Duration) {
	Init()
	scrapesTotal.WithLabelValues(outcome).Inc()
	scrapeDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveFonts records how many font families a page reported.
func ObserveFonts(count int) {
	Init()
	fontsPerPage.Observe(float64(count))
}

// ObserveButtonMatch counts which selector located the add-to-cart button.
// An empty selector is recorded as NoButton.
func ObserveButtonMatch(selector string) {
	Init()
	if selector == "" {
		selector = NoButton
	}
	buttonMatchesTotal.WithLabelValues(selector).Inc()
}

// IncBrowserSessions increments the open browser sessions gauge.
func IncBrowserSessions() {
	Init()
	browserSessionsActive.Inc()
}

// DecBrowserSessions decrements the open browser sessions gauge.
func DecBrowserSessions() {
	Init()
	browserSessionsActive.Dec()
}

// ObserveAdmissionWait records the duration of a wait for a browser slot.
func ObserveAdmissionWait(duration time.Duration) {
	Init()
	scrapeAdmissionWaitSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
