// Package metrics holds the Prometheus collectors shared by the ledger,
// payment and HTTP layers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadvault"

var (
	CreditsDeducted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_deducted_total",
		Help:      "Credits removed from user balances, by reason.",
	}, []string{"reason"})

	CreditsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_added_total",
		Help:      "Credits added to user balances, by reason.",
	}, []string{"reason"})

	InsufficientCredits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insufficient_credits_total",
		Help:      "Deductions rejected because the balance was too low.",
	}, []string{"reason"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Refunds issued after a failed charged operation, by result.",
	}, []string{"result"})

	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_events_total",
		Help:      "Verified payment webhook events, by outcome.",
	}, []string{"outcome"})

	LedgerDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_drift_users",
		Help:      "Users whose balance disagrees with their transaction log at the last reconciliation.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
