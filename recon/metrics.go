package recon

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spacemeshos/gluon/metrics"
)

const (
	subsystem = "recon"

	roleSender   = "sender"
	roleReceiver = "receiver"

	phaseContent = "content"
	phaseOrder   = "order"
)

var (
	decodeOutcomes = metrics.NewCounter(
		"sketch_decodes_total",
		subsystem,
		"Difference sketch decodes by phase and status",
		[]string{"phase", "status"},
	)
	sessionOutcomes = metrics.NewCounter(
		"sessions_total",
		subsystem,
		"Reconciliation sessions by role and outcome",
		[]string{"role", "outcome"},
	)
	activeSessions = metrics.NewGauge(
		"active_sessions",
		subsystem,
		"Reconciliation sessions in progress by role",
		[]string{"role"},
	)
	segmentsPerResponse = metrics.NewHistogramWithBuckets(
		"response_segments",
		subsystem,
		"Segments per missing transaction response",
		[]string{},
		prometheus.ExponentialBuckets(1, 2, 12),
	).WithLabelValues()
	orderRounds = metrics.NewHistogramWithBuckets(
		"order_rounds",
		subsystem,
		"Order rounds consumed per receiving session",
		[]string{},
		prometheus.LinearBuckets(0, 2, 16),
	).WithLabelValues()
	missingPairsPerRound = metrics.NewHistogramWithBuckets(
		"missing_pairs",
		subsystem,
		"Missing sibling pairs decoded per order round",
		[]string{},
		prometheus.ExponentialBuckets(1, 2, 16),
	).WithLabelValues()
)
