// Package metrics holds process wide Prometheus metrics and the HTTP server exposing them.
// Component specific metrics live next to the code that updates them; Go runtime metrics come
// from the default registry's collectors.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error severities. A fatal error stops the dispatcher, a recoverable one is retried.
const (
	SeverityRecoverable = "recoverable"
	SeverityFatal       = "fatal"
)

var startTime = time.Now()

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_build_info",
			Help: "Build information, always 1",
		},
		[]string{"version", "go_version"},
	)

	Uptime = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chainsyncer_uptime_seconds",
			Help: "Seconds since the process started",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	// ComponentHealth is 1 while a component (datasource connection, API server) is healthy.
	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsyncer_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)
)

func BuildInfoSet(version string) {
	BuildInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}

	ComponentHealth.WithLabelValues(component).Set(v)
}
