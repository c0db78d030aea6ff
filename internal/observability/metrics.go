// Package observability holds the service-level Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "intake",
		Name:      "activities_ingested_total",
		Help:      "Accepted activities by source.",
	}, []string{"source"})

	duplicatesReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "intake",
		Name:      "duplicates_replayed_total",
		Help:      "Ingest calls answered from the dedup constraint.",
	})

	xpAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "xp_awarded_total",
		Help:      "XP appended to the ledger by reason.",
	}, []string{"reason"})

	badgesAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "badges",
		Name:      "awarded_total",
		Help:      "Badges unlocked across all users.",
	})

	unitCommittedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression",
		Subsystem: "persistence",
		Name:      "last_unit_committed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed unit of work.",
	})
)

func init() {
	prometheus.MustRegister(activitiesIngested, duplicatesReplayed, xpAwarded, badgesAwarded, unitCommittedGauge)
}

// RecordActivityIngested counts an accepted activity.
func RecordActivityIngested(source string) {
	activitiesIngested.WithLabelValues(source).Inc()
}

// RecordDuplicateReplayed counts an idempotent replay answer.
func RecordDuplicateReplayed() {
	duplicatesReplayed.Inc()
}

// RecordXPAwarded counts ledger appends by reason.
func RecordXPAwarded(reason string, amount int64) {
	xpAwarded.WithLabelValues(reason).Add(float64(amount))
}

// RecordBadgesAwarded counts badge unlocks.
func RecordBadgesAwarded(n int) {
	if n > 0 {
		badgesAwarded.Add(float64(n))
	}
}

// RecordUnitCommitted updates the unit-of-work watermark gauge.
func RecordUnitCommitted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	unitCommittedGauge.Set(float64(ts.Unix()))
}
