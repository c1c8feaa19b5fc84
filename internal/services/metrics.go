// Package services – domain metrics.
//
// Prometheus collectors for the handle subsystem. Label cardinality is
// kept to a closed set of outcome values so dashboards stay cheap.
package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// renameOutcomes counts rename attempts by terminal outcome.
	renameOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handle_renames_total",
			Help: "Total handle rename attempts by outcome.",
		},
		[]string{"outcome"}, // committed | case_only | rejected | conflict
	)

	// backfillAssigned counts handles assigned by the backfill generator.
	backfillAssigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handle_backfill_assigned_total",
			Help: "Total handles assigned by the backfill generator.",
		},
	)

	// backfillCollisions counts collision-loop iterations during backfill,
	// a gauge of how contended the derived namespace is.
	backfillCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handle_backfill_collisions_total",
			Help: "Total collision-loop iterations during backfill.",
		},
	)
)

const (
	outcomeCommitted = "committed"
	outcomeCaseOnly  = "case_only"
	outcomeRejected  = "rejected"
	outcomeConflict  = "conflict"
)
