package state

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_state_transactions_total",
			Help: "Total number of handler transactions by outcome",
		},
		[]string{"index", "status"},
	)

	transactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainsyncer_state_transaction_duration_seconds",
			Help:    "Duration of handler transactions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	modelUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_state_model_updates_total",
			Help: "Total number of undo log records written",
		},
		[]string{"index"},
	)

	revertedUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_state_reverted_updates_total",
			Help: "Total number of undo log records applied by rollbacks",
		},
		[]string{"index"},
	)

	prunedUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_state_pruned_updates_total",
			Help: "Total number of undo log records pruned below the rollback depth",
		},
		[]string{"index"},
	)
)

func TransactionInc(index string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	transactions.WithLabelValues(index, status).Inc()
}

func TransactionDurationLog(index string, d time.Duration) {
	transactionDuration.WithLabelValues(index).Observe(d.Seconds())
}

func ModelUpdatesAdd(index string, n int) {
	modelUpdates.WithLabelValues(index).Add(float64(n))
}

func RevertedUpdatesAdd(index string, n int) {
	revertedUpdates.WithLabelValues(index).Add(float64(n))
}

func PrunedUpdatesAdd(index string, n int64) {
	prunedUpdates.WithLabelValues(index).Add(float64(n))
}
