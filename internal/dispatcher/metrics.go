package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeIndexes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsyncer_dispatcher_active_indexes",
			Help: "Number of indexes that are not disabled",
		},
	)

	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainsyncer_dispatcher_process_duration_seconds",
			Help:    "Duration of index process calls that made progress",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	processErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_dispatcher_process_errors_total",
			Help: "Total number of recoverable index processing errors",
		},
		[]string{"index"},
	)
)
