/*
metrics.go - Prometheus instrumentation for the points engine

PURPOSE:
  Counts the business events operators actually watch: credits issued,
  redemption attempts by outcome, refunds, and optimistic-concurrency
  conflicts. Exposed at GET /metrics via promhttp.

METRIC NAMES:
  points_credits_total          credits applied, labeled by event type
  points_redemptions_total      redemption attempts, labeled by outcome
  points_refunds_total          refunds issued on reject/cancel
  points_cas_conflicts_total    operations that exhausted their retries

SEE ALSO:
  - handlers.go: increments these counters
  - server.go: mounts the /metrics endpoint
*/
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	creditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_credits_total",
		Help: "Number of point credits applied, by award event type.",
	}, []string{"event_type"})

	redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_redemptions_total",
		Help: "Number of redemption attempts, by outcome.",
	}, []string{"outcome"})

	refundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_refunds_total",
		Help: "Number of refunds issued for rejected or cancelled redemptions.",
	})

	casConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_cas_conflicts_total",
		Help: "Number of operations that exhausted their optimistic retries.",
	})
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
