package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
)

// Task is a unit of periodic database housekeeping, such as pruning stale undo records.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Maintenance interface {
	// Start begins background maintenance if enabled.
	Start(ctx context.Context) error
	// Stop stops background maintenance and waits for completion.
	Stop() error
	// AddTask registers a task executed on every maintenance run, before storage compaction.
	AddTask(task Task)
	// AcquireOperationLock acquires a read lock for database operations.
	// Returns an unlock function that must be called when the operation completes.
	AcquireOperationLock() func()
	// GetMetrics returns current maintenance metrics.
	GetMetrics() MaintenanceMetrics
	// RunMaintenance performs database maintenance operations (for manual invocation).
	RunMaintenance(ctx context.Context) error
}

// NoOpMaintenance is a no-operation implementation of the Maintenance interface.
type NoOpMaintenance struct{}

func (m *NoOpMaintenance) Start(context.Context) error          { return nil }
func (m *NoOpMaintenance) Stop() error                          { return nil }
func (m *NoOpMaintenance) AddTask(Task)                         {}
func (m *NoOpMaintenance) RunMaintenance(context.Context) error { return nil }
func (m *NoOpMaintenance) AcquireOperationLock() func()         { return func() {} }
func (m *NoOpMaintenance) GetMetrics() MaintenanceMetrics       { return MaintenanceMetrics{} }

// MaintenanceCoordinator coordinates database maintenance with regular writes.
// Writers hold the read side of opLock; maintenance takes the write side for exclusive access.
type MaintenanceCoordinator struct {
	db     *sql.DB
	config config.MaintenanceConfig
	dbPath string
	sqlite bool
	log    *logger.Logger

	opLock sync.RWMutex

	tasksLock sync.Mutex
	tasks     []Task

	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsLock         sync.Mutex
	lastMaintenanceTime time.Time
	maintenanceCount    uint64
	lastMaintenanceErr  error
}

// NewMaintenanceCoordinator creates a maintenance coordinator for the state database.
// A nil config disables maintenance. WAL checkpoints and VACUUM only apply to SQLite.
func NewMaintenanceCoordinator(
	dbCfg config.DatabaseConfig,
	db *sql.DB,
	log *logger.Logger,
) Maintenance {
	if dbCfg.Maintenance == nil {
		return &NoOpMaintenance{}
	}

	return newMaintenanceCoordinator(dbCfg, db, log)
}

func newMaintenanceCoordinator(
	dbCfg config.DatabaseConfig,
	db *sql.DB,
	log *logger.Logger,
) *MaintenanceCoordinator {
	return &MaintenanceCoordinator{
		db:     db,
		config: *dbCfg.Maintenance,
		dbPath: dbCfg.Path,
		sqlite: dbCfg.Driver != config.DriverPostgres,
		log:    log,
	}
}

// AddTask registers a task executed on every maintenance run.
func (m *MaintenanceCoordinator) AddTask(task Task) {
	m.tasksLock.Lock()
	defer m.tasksLock.Unlock()

	m.tasks = append(m.tasks, task)
}

// Start begins background maintenance if enabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Info("Background maintenance is disabled")
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.config.VacuumOnStartup {
		m.log.Info("Running startup maintenance")
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnf("Startup maintenance failed: %v", err)
		}
	}

	m.wg.Add(1)
	go m.maintenanceWorker(ctx, m.config.CheckInterval.Duration)

	m.log.Infof("Background maintenance started - interval: %v, checkpoint mode: %s",
		m.config.CheckInterval.Duration, m.config.WALCheckpointMode)

	return nil
}

// Stop stops background maintenance and waits for completion.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil // Not started
	}

	m.log.Info("Stopping background maintenance...")
	m.cancel()
	m.wg.Wait()
	m.log.Info("Background maintenance stopped")

	return nil
}

func (m *MaintenanceCoordinator) maintenanceWorker(ctx context.Context, checkInterval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			m.log.Debug("Running periodic maintenance")
			if err := m.RunMaintenance(ctx); err != nil {
				m.log.Warnf("Periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance runs the registered tasks, then checkpoints and vacuums a SQLite database.
// It holds the write side of the operation lock, so state writes wait until it completes.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	// cancelled while waiting for the lock
	if ctx.Err() != nil {
		return ctx.Err()
	}

	start := time.Now()
	errs := m.runTasks(ctx)
	if m.sqlite {
		errs = append(errs, m.compactSQLite()...)
	}
	err := errors.Join(errs...)
	duration := time.Since(start)

	m.metricsLock.Lock()
	m.lastMaintenanceTime = time.Now().UTC()
	m.maintenanceCount++
	m.lastMaintenanceErr = err
	m.metricsLock.Unlock()

	observeRun(duration, err)

	if err != nil {
		m.log.Warnw("database maintenance finished with errors", "duration", duration, "error", err)
		return err
	}

	m.log.Infow("database maintenance finished", "duration", duration)

	return nil
}

func (m *MaintenanceCoordinator) runTasks(ctx context.Context) []error {
	m.tasksLock.Lock()
	tasks := slices.Clone(m.tasks)
	m.tasksLock.Unlock()

	var errs []error
	for _, task := range tasks {
		start := time.Now()
		err := task.Run(ctx)
		observeTask(task.Name, time.Since(start), err)

		if err != nil {
			m.log.Errorw("maintenance task failed", "task", task.Name, "error", err)
			errs = append(errs, fmt.Errorf("task %s: %w", task.Name, err))
		}
	}

	return errs
}

// compactSQLite checkpoints the WAL and vacuums the database file.
func (m *MaintenanceCoordinator) compactSQLite() []error {
	before, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("Failed to get DB size before compaction: %v", err)
	}

	var errs []error
	if err := m.walCheckpoint(); err != nil {
		errs = append(errs, fmt.Errorf("WAL checkpoint failed: %w", err))
	}
	if err := m.vacuum(); err != nil {
		errs = append(errs, fmt.Errorf("VACUUM failed: %w", err))
	}

	after, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("Failed to get DB size after compaction: %v", err)
		return errs
	}

	observeSQLiteSize(before, after)
	if before > after {
		m.log.Infof("Compaction reclaimed %d KB", (before-after)/1024) //nolint:mnd
	}

	return errs
}

func (m *MaintenanceCoordinator) walCheckpoint() error {
	isWAL, err := m.isWALMode()
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	if !isWAL {
		m.log.Debug("Database not in WAL mode, skipping WAL checkpoint")
		return nil
	}

	checkpointSQL := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.config.WALCheckpointMode)

	var busyCount, logFrames, checkpointedFrames int
	err = m.db.QueryRow(checkpointSQL).Scan(&busyCount, &logFrames, &checkpointedFrames)
	if err != nil {
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	m.log.Infof("WAL checkpoint complete - mode: %s, busy: %d, log_frames: %d, checkpointed: %d",
		m.config.WALCheckpointMode, busyCount, logFrames, checkpointedFrames)

	sqliteCheckpoints.WithLabelValues(strings.ToLower(m.config.WALCheckpointMode)).Inc()

	if busyCount > 0 {
		m.log.Warnf("WAL checkpoint encountered %d busy pages (some pages not checkpointed)", busyCount)
	}

	return nil
}

func (m *MaintenanceCoordinator) vacuum() error {
	if err := Vacuum(m.db); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked (retry later)")
		}
		return err
	}

	sqliteVacuums.Inc()
	m.log.Debug("VACUUM completed successfully")
	return nil
}

func (m *MaintenanceCoordinator) isWALMode() (bool, error) {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}

// AcquireOperationLock acquires a read lock for database operations.
// Returns an unlock function that must be called when the operation completes.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// GetMetrics returns current maintenance metrics.
func (m *MaintenanceCoordinator) GetMetrics() MaintenanceMetrics {
	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	return MaintenanceMetrics{
		LastMaintenanceTime:  m.lastMaintenanceTime,
		MaintenanceCount:     m.maintenanceCount,
		LastMaintenanceError: m.lastMaintenanceErr,
	}
}

// MaintenanceMetrics provides visibility into maintenance operations.
type MaintenanceMetrics struct {
	LastMaintenanceTime  time.Time
	MaintenanceCount     uint64
	LastMaintenanceError error
}
