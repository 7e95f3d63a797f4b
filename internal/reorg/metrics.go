package reorg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rollbacksRequested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_rollbacks_total",
			Help: "Total number of realtime rollbacks by outcome (absorbed or escalated)",
		},
		[]string{"datasource", "outcome"},
	)

	rollbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainsyncer_rollback_depth_levels",
			Help:    "Depth of realtime rollbacks in levels",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	rollbackLastDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsyncer_rollback_last_detected_timestamp",
			Help: "Unix timestamp of last rollback",
		},
	)

	bufferedLevels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_message_buffer_levels",
			Help: "Number of levels held in the realtime message buffer",
		},
		[]string{"datasource"},
	)
)

// RollbackLog records a rollback and whether the message buffer absorbed it.
func RollbackLog(datasource string, fromLevel, toLevel uint64, absorbed bool) {
	outcome := "escalated"
	if absorbed {
		outcome = "absorbed"
	}

	rollbacksRequested.WithLabelValues(datasource, outcome).Inc()
	if fromLevel > toLevel {
		rollbackDepth.Observe(float64(fromLevel - toLevel))
	}
	rollbackLastDetected.Set(float64(time.Now().UTC().Unix()))
}
