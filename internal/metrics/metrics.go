package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricsEndpoint   = "localhost:9090"
	ReadHeaderTimeout = 2 * time.Second
)

var (
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicesync_pages_fetched_total",
			Help: "Listing pages fetched, by outcome.",
		},
		[]string{"resource", "outcome"},
	)

	DeviceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicesync_device_fetches_total",
			Help: "Device detail fetches, by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicesync_rate_limit_retries_total",
			Help: "Requests retried after a rate limit response.",
		},
	)

	EnrichmentRunTimeSummary = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name: "devicesync_enrichment_duration_seconds",
			Help: "Time taken by an enrichment pass.",
		},
	)

	ActivitySubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicesync_activity_submissions_total",
			Help: "Activity submissions, by mutation kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	ActivityOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicesync_activity_outcomes_total",
			Help: "Monitored activities, by final state.",
		},
		[]string{"state"},
	)
)

// ListenAndServe exposes prometheus metrics on the localhost endpoint.
func ListenAndServe() {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              MetricsEndpoint,
			Handler:           mux,
			ReadHeaderTimeout: ReadHeaderTimeout,
		}

		if err := server.ListenAndServe(); err != nil {
			slog.Error("Failed to start metrics server", "error", err)
		}
	}()

	slog.Info("metrics enabled", "endpoint", MetricsEndpoint+"/metrics")
}
