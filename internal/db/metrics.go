package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_db_maintenance_runs_total",
			Help: "Total number of database maintenance runs by outcome",
		},
		[]string{"outcome"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainsyncer_db_maintenance_duration_seconds",
			Help:    "Duration of database maintenance runs, including registered tasks",
			Buckets: prometheus.DefBuckets,
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsyncer_db_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance run",
		},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainsyncer_db_maintenance_task_duration_seconds",
			Help:    "Duration of registered maintenance tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	taskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_db_maintenance_task_failures_total",
			Help: "Total number of failed maintenance task runs",
		},
		[]string{"task"},
	)

	sqliteReclaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsyncer_db_sqlite_reclaimed_bytes",
			Help: "Bytes reclaimed by the last SQLite checkpoint and VACUUM",
		},
	)

	sqliteCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsyncer_db_sqlite_wal_checkpoints_total",
			Help: "Total number of SQLite WAL checkpoints by mode",
		},
		[]string{"mode"},
	)

	sqliteVacuums = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainsyncer_db_sqlite_vacuums_total",
			Help: "Total number of SQLite VACUUM runs",
		},
	)

	sqliteSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsyncer_db_sqlite_size_bytes",
			Help: "Size of the SQLite database including WAL and SHM files",
		},
	)
)

// observeRun records the outcome of a whole maintenance run.
func observeRun(duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	maintenanceRuns.WithLabelValues(outcome).Inc()
	maintenanceDuration.Observe(duration.Seconds())
	maintenanceLastRun.Set(float64(time.Now().Unix()))
}

func observeTask(name string, duration time.Duration, err error) {
	taskDuration.WithLabelValues(name).Observe(duration.Seconds())
	if err != nil {
		taskFailures.WithLabelValues(name).Inc()
	}
}

// observeSQLiteSize records the database size after compaction and what it freed.
func observeSQLiteSize(before, after int64) {
	sqliteSize.Set(float64(after))
	if before > after {
		sqliteReclaimed.Set(float64(before - after))
	}
}
