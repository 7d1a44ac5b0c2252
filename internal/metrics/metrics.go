// Package metrics holds every Prometheus collector the gateway exposes on
// /metrics, registered eagerly via promauto the way the rest of the pack
// registers its collectors at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamforge_sessions_active",
		Help: "Number of stream sessions currently admitted",
	})

	SessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamforge_sessions_rejected_total",
		Help: "Number of stream session starts refused because the concurrency cap was reached",
	})

	StreamStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamforge_stream_starts_total",
		Help: "Stream starts by outcome",
	}, []string{"outcome"})

	FailoverSwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamforge_failover_swaps_total",
		Help: "Failover swaps by reason",
	}, []string{"reason"})

	FailoverExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamforge_failover_exhausted_total",
		Help: "Number of times every backup candidate was exhausted without a successful swap",
	})

	EpgRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamforge_epg_refreshes_total",
		Help: "EPG source refreshes by outcome",
	}, []string{"outcome"})

	MatcherRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamforge_matcher_runs_total",
		Help: "Number of full matcher rematch passes",
	})

	ReconcilerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamforge_reconciler_runs_total",
		Help: "Provider-delta reconcile passes by account",
	}, []string{"account_id"})
)
