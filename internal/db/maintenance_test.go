package db

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, rows int, maintenance config.MaintenanceConfig) (*MaintenanceCoordinator, string) {
	t.Helper()

	db, dbPath := setupTestDB(t, "WAL", rows)
	dbCfg := config.DatabaseConfig{Path: dbPath, Maintenance: &maintenance}
	dbCfg.ApplyDefaults()

	return newMaintenanceCoordinator(dbCfg, db, logger.NewNopLogger()), dbPath
}

func TestNewMaintenanceCoordinator(t *testing.T) {
	db, dbPath := setupTestDB(t, "WAL", 0)

	m := NewMaintenanceCoordinator(config.DatabaseConfig{Path: dbPath}, db, logger.NewNopLogger())
	require.IsType(t, &NoOpMaintenance{}, m)
	require.NoError(t, m.RunMaintenance(context.Background()))
	m.AcquireOperationLock()()

	dbCfg := config.DatabaseConfig{Path: dbPath, Maintenance: &config.MaintenanceConfig{}}
	dbCfg.ApplyDefaults()

	m = NewMaintenanceCoordinator(dbCfg, db, logger.NewNopLogger())
	coordinator, ok := m.(*MaintenanceCoordinator)
	require.True(t, ok)
	require.True(t, coordinator.sqlite)
	require.Equal(t, "TRUNCATE", coordinator.config.WALCheckpointMode)
	require.Equal(t, 30*time.Minute, coordinator.config.CheckInterval.Duration)
}

func TestMaintenanceCoordinator_RunMaintenance(t *testing.T) {
	coordinator, dbPath := newTestCoordinator(t, 1000, config.MaintenanceConfig{WALCheckpointMode: "TRUNCATE"})

	walInfo, err := os.Stat(dbPath + "-wal")
	require.NoError(t, err)
	require.Positive(t, walInfo.Size(), "WAL should have data before checkpoint")

	var runs atomic.Int32
	coordinator.AddTask(Task{Name: "prune", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	require.NoError(t, coordinator.RunMaintenance(context.Background()))
	require.Equal(t, int32(1), runs.Load())

	metrics := coordinator.GetMetrics()
	require.Equal(t, uint64(1), metrics.MaintenanceCount)
	require.False(t, metrics.LastMaintenanceTime.IsZero())
	require.NoError(t, metrics.LastMaintenanceError)
}

func TestMaintenanceCoordinator_TaskFailure(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"})

	boom := errors.New("boom")
	var second atomic.Bool
	coordinator.AddTask(Task{Name: "failing", Run: func(context.Context) error { return boom }})
	coordinator.AddTask(Task{Name: "second", Run: func(context.Context) error {
		second.Store(true)
		return nil
	}})

	err := coordinator.RunMaintenance(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "task failing: boom")
	require.True(t, second.Load(), "a failing task must not stop the remaining ones")
	require.ErrorIs(t, coordinator.GetMetrics().LastMaintenanceError, boom)
}

func TestMaintenanceCoordinator_PostgresRunsOnlyTasks(t *testing.T) {
	dbCfg := config.DatabaseConfig{
		Driver:      config.DriverPostgres,
		DSN:         "postgres://localhost/state",
		Maintenance: &config.MaintenanceConfig{},
	}
	dbCfg.ApplyDefaults()

	// a nil handle proves no SQLite statements are issued
	coordinator := newMaintenanceCoordinator(dbCfg, nil, logger.NewNopLogger())
	require.False(t, coordinator.sqlite)

	var runs atomic.Int32
	coordinator.AddTask(Task{Name: "prune", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	require.NoError(t, coordinator.RunMaintenance(context.Background()))
	require.Equal(t, int32(1), runs.Load())
}

func TestMaintenanceCoordinator_MaintenanceBlocksOperations(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"})

	taskStarted := make(chan struct{})
	releaseTask := make(chan struct{})
	coordinator.AddTask(Task{Name: "slow", Run: func(context.Context) error {
		close(taskStarted)
		<-releaseTask
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- coordinator.RunMaintenance(context.Background()) }()
	<-taskStarted

	var acquired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock := coordinator.AcquireOperationLock()
		acquired.Store(true)
		unlock()
	}()

	time.Sleep(50 * time.Millisecond)
	require.False(t, acquired.Load(), "operations must wait for maintenance")

	close(releaseTask)
	require.NoError(t, <-done)
	wg.Wait()
	require.True(t, acquired.Load())
}

func TestMaintenanceCoordinator_OperationLock(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"})

	// operations share the lock
	first := coordinator.AcquireOperationLock()
	second := coordinator.AcquireOperationLock()
	first()
	second()
}

func TestMaintenanceCoordinator_BackgroundMaintenance(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{
		Enabled:           true,
		CheckInterval:     common.NewDuration(20 * time.Millisecond),
		WALCheckpointMode: "PASSIVE",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, coordinator.Start(ctx))
	require.Eventually(t, func() bool {
		return coordinator.GetMetrics().MaintenanceCount >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, coordinator.Stop())
	count := coordinator.GetMetrics().MaintenanceCount
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, count, coordinator.GetMetrics().MaintenanceCount, "no runs after Stop")
}

func TestMaintenanceCoordinator_StartupMaintenance(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{
		Enabled:           true,
		CheckInterval:     common.NewDuration(time.Hour),
		VacuumOnStartup:   true,
		WALCheckpointMode: "TRUNCATE",
	})

	require.NoError(t, coordinator.Start(context.Background()))
	defer coordinator.Stop() //nolint:errcheck

	require.Equal(t, uint64(1), coordinator.GetMetrics().MaintenanceCount)
}

func TestMaintenanceCoordinator_DisabledMaintenance(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{
		Enabled:           false,
		CheckInterval:     common.NewDuration(10 * time.Millisecond),
		WALCheckpointMode: "PASSIVE",
	})

	require.NoError(t, coordinator.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, coordinator.GetMetrics().MaintenanceCount)
	require.NoError(t, coordinator.Stop())
}

func TestMaintenanceCoordinator_ContextCancellation(t *testing.T) {
	coordinator, _ := newTestCoordinator(t, 0, config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, coordinator.RunMaintenance(ctx), context.Canceled)
}
