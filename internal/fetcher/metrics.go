package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_fetcher_pages_total",
			Help: "Total number of pages requested per fetch channel",
		},
		[]string{"channel"},
	)

	channelItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_fetcher_items_total",
			Help: "Total number of items received per fetch channel",
		},
		[]string{"channel"},
	)

	fetchedLevels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_fetcher_levels_total",
			Help: "Total number of complete levels emitted by the level merger",
		},
		[]string{"index"},
	)

	readaheadLevels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_fetcher_readahead_levels",
			Help: "Number of levels waiting in the readahead queue",
		},
		[]string{"index"},
	)
)
