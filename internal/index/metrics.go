package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_index_level",
			Help: "Last level processed by an index",
		},
		[]string{"index"},
	)

	syncLevelGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_index_sync_level",
			Help: "Level an index is synchronizing to",
		},
		[]string{"index"},
	)

	processedLevels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_index_levels_total",
			Help: "Total number of levels processed per index and mode",
		},
		[]string{"index", "mode"},
	)

	matchedHandlers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_index_handler_calls_total",
			Help: "Total number of callback invocations per index and callback",
		},
		[]string{"index", "callback"},
	)

	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_index_queue_length",
			Help: "Number of realtime messages waiting in the index queue",
		},
		[]string{"index"},
	)

	staleMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_index_stale_messages_total",
			Help: "Total number of realtime messages dropped because the index already covered their level",
		},
		[]string{"index"},
	)

	rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_index_rollbacks_total",
			Help: "Total number of rollbacks applied to an index",
		},
		[]string{"index"},
	)
)

const (
	modeSync     = "sync"
	modeRealtime = "realtime"
)

// levelProcessed records a processed level.
func levelProcessed(index, mode string, level uint64, calls []string) {
	indexLevel.WithLabelValues(index).Set(float64(level))
	processedLevels.WithLabelValues(index, mode).Inc()
	for _, callback := range calls {
		matchedHandlers.WithLabelValues(index, callback).Inc()
	}
}
