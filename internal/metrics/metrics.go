// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scrape metrics
	ScrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "scrape",
			Name:      "outcomes_total",
			Help:      "Total number of scrape outcomes by result",
		},
		[]string{"result"}, // "success" or an error kind
	)

	ScrapeAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "scrape",
			Name:      "attempts_total",
			Help:      "Total number of extraction attempts, retries included",
		},
	)

	ScrapeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "invoice_scraper",
			Subsystem: "scrape",
			Name:      "duration_seconds",
			Help:      "Duration of a single extraction attempt in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~64s
		},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "download",
			Name:      "captured_total",
			Help:      "Total number of PDFs captured by strategy",
		},
		[]string{"strategy"}, // "observer" or "fetch"
	)

	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch runs",
		},
	)

	// Session metrics
	LoginChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "session",
			Name:      "login_checks_total",
			Help:      "Total number of authentication checks by result",
		},
		[]string{"result"}, // "logged_in", "manual_login", "timeout", "cancelled", "error"
	)

	BrowserRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "invoice_scraper",
			Subsystem: "session",
			Name:      "browser_running",
			Help:      "1 while a browser context is live",
		},
	)

	// HTTP metrics
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	BusyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invoice_scraper",
			Subsystem: "http",
			Name:      "busy_rejections_total",
			Help:      "Total number of requests rejected because a browser operation was in flight",
		},
	)
)
