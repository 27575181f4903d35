// Package metrics declares the prometheus collectors for the audit ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_recorded_total",
		Help: "Total number of events accepted into the pending pool, labelled by kind.",
	}, []string{"kind"})

	EventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_events_rejected_total",
		Help: "Total number of events rejected at validation.",
	})

	EventsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_events_deduplicated_total",
		Help: "Total number of duplicate event ids absorbed as no-ops.",
	})

	BlocksMined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_blocks_mined_total",
		Help: "Total number of blocks committed to the chain.",
	})

	MiningTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_mining_timeouts_total",
		Help: "Total number of mining attempts abandoned at the timeout or attempt ceiling.",
	})

	MiningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_mining_duration_seconds",
		Help:    "Wall-clock duration of successful proof-of-work searches.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	PendingDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pending_pool_depth",
		Help: "Current number of events waiting in the pending pool.",
	})

	VerifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_chain_verify_failures_total",
		Help: "Total number of chain verifications that detected an integrity violation.",
	})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests served, labelled by method and status code.",
	}, []string{"method", "status"})

	Panics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_http_panics_total",
		Help: "Total HTTP requests that ended in a recovered panic.",
	})
)
