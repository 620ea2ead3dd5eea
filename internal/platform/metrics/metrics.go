// Package metrics exposes the process-wide Prometheus collectors. Counters
// live here so application code can record outcomes without owning a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DistributionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merkledrop_distributions_created_total",
		Help: "Distributions confirmed by the ledger and persisted to the mirror.",
	})

	FinalizationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merkledrop_finalization_attempts_total",
		Help: "Finalization attempts by outcome.",
	}, []string{"outcome"})

	SyncDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merkledrop_sync_drift_total",
		Help: "Syncs that found the mirror diverged from the ledger.",
	})

	ClaimEventsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merkledrop_claim_events_applied_total",
		Help: "Claim events reflected into the mirror.",
	})
)
