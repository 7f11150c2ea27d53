// Package metrics exposes the gateway's Prometheus instrumentation,
// grounded on Shannon orchestrator's internal/metrics package —
// package-level promauto collectors registered once at import time,
// scraped at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total chat completion requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Chat completion request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CreditsDeducted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_credits_deducted_total",
			Help: "Total credits deducted from billing groups",
		},
		[]string{"provider"},
	)

	BudgetBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_budget_blocks_total",
			Help: "Requests rejected by the budget engine, by hierarchy level",
		},
		[]string{"target"},
	)
)

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
