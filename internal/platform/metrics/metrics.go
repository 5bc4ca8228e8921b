package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payout engine.
type Metrics struct {
	PayoutsDispatched   prometheus.Counter
	PayoutCentsTotal    prometheus.Counter
	PayoutFailures      *prometheus.CounterVec
	CommitInconsistency prometheus.Counter
	LedgerPagesFetched  prometheus.Counter
	KeysIssued          prometheus.Counter
	DispatchDuration    prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		PayoutsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_payouts_dispatched_total",
			Help: "Total number of successfully committed disbursements",
		}),
		PayoutCentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_payout_cents_total",
			Help: "Total minor units disbursed across all recipients",
		}),
		PayoutFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marquee_payout_failures_total",
			Help: "Failed payout attempts by error kind",
		}, []string{"kind"}),
		CommitInconsistency: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_commit_inconsistency_total",
			Help: "Dispatches that succeeded at the processor but failed the local commit; requires manual reconciliation",
		}),
		LedgerPagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_ledger_pages_fetched_total",
			Help: "Pages fetched from the external payments ledger",
		}),
		KeysIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_authorization_keys_issued_total",
			Help: "Authorization keys issued by admins",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marquee_dispatch_duration_seconds",
			Help:    "Latency of transfer calls to the payments processor",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
