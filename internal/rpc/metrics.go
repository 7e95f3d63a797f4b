package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPC metrics
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_rpc_requests_total",
			Help: "Total number of REST requests by datasource and endpoint",
		},
		[]string{"datasource", "endpoint"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_rpc_errors_total",
			Help: "Total number of REST errors by datasource, endpoint and type",
		},
		[]string{"datasource", "endpoint", "error_type"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_rpc_retries_total",
			Help: "Total number of retried REST requests by datasource and endpoint",
		},
		[]string{"datasource", "endpoint"},
	)

	RPCCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_rpc_cache_hits_total",
			Help: "Total number of REST responses served from the response cache",
		},
		[]string{"datasource"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainsyncer_rpc_request_duration_seconds",
			Help:    "Duration of REST requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"datasource", "endpoint"},
	)
)

func RPCMethodInc(datasource, endpoint string) {
	RPCRequests.WithLabelValues(datasource, endpoint).Inc()
}

func RPCMethodDuration(datasource, endpoint string, duration time.Duration) {
	RPCDuration.WithLabelValues(datasource, endpoint).Observe(duration.Seconds())
}

func RPCMethodError(datasource, endpoint, errorType string) {
	RPCErrors.WithLabelValues(datasource, endpoint, errorType).Inc()
}

func RPCRetryInc(datasource, endpoint string) {
	RPCRetries.WithLabelValues(datasource, endpoint).Inc()
}

func RPCCacheHitInc(datasource string) {
	RPCCacheHits.WithLabelValues(datasource).Inc()
}
