package datasource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	realtimeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_realtime_messages_total",
			Help: "Total number of realtime messages by datasource, channel and message kind",
		},
		[]string{"datasource", "channel", "kind"},
	)

	lateItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_realtime_late_items_total",
			Help: "Total number of realtime items dropped because their level was already delivered",
		},
		[]string{"datasource", "channel"},
	)

	reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_realtime_reconnects_total",
			Help: "Total number of realtime reconnect attempts",
		},
		[]string{"datasource"},
	)

	connected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_realtime_connected",
			Help: "Whether the realtime connection is up (1) or down (0)",
		},
		[]string{"datasource"},
	)

	syncLevelGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_datasource_sync_level",
			Help: "Latest sync level by datasource and channel",
		},
		[]string{"datasource", "channel"},
	)
)
