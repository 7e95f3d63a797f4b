// Package dispatcher builds the configured indexes, wires them to their datasources and drives
// them until the context is cancelled or every bounded index is done.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/db"
	"github.com/goran-ethernal/ChainSyncer/internal/index"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/metrics"
	"github.com/goran-ethernal/ChainSyncer/internal/notify"
	"github.com/goran-ethernal/ChainSyncer/internal/reorg"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownIndex is returned for operations on an index that is not configured.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrNothingToRollback is returned when a manual rollback target is not below the index level.
	ErrNothingToRollback = errors.New("target level is not below the index level")
)

// Store is the persistence the dispatcher and its indexes need.
type Store interface {
	index.Store
	DeleteIndex(ctx context.Context, name string) error
	Rollback(ctx context.Context, index string, fromLevel, toLevel uint64) (int, error)
	PruneUpdates(ctx context.Context, index string, belowLevel uint64) (int64, error)
	RollbackDepth() uint64
}

type entry struct {
	runner index.Runner
	// mu serializes Process with manual rollbacks
	mu sync.Mutex
}

// Dispatcher owns every configured index.
type Dispatcher struct {
	cfg         *config.Config
	store       Store
	datasources map[string]pkgds.Datasource
	notifier    notify.Notifier
	log         *logger.Logger

	entries []*entry
	byName  map[string]*entry
}

// New builds an index for every configured index name. datasources must hold every datasource
// referenced by the configuration.
func New(
	cfg *config.Config,
	store Store,
	datasources map[string]pkgds.Datasource,
	notifier notify.Notifier,
	log *logger.Logger,
) (*Dispatcher, error) {
	if notifier == nil {
		notifier = notify.Noop{}
	}

	d := &Dispatcher{
		cfg:         cfg,
		store:       store,
		datasources: datasources,
		notifier:    notifier,
		log:         log,
		byName:      make(map[string]*entry),
	}

	for _, name := range cfg.IndexNames() {
		runner, err := d.build(name, cfg.Indexes[name])
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", name, err)
		}

		e := &entry{runner: runner}
		d.entries = append(d.entries, e)
		d.byName[name] = e
	}

	return d, nil
}

// Run initializes every index and processes them until ctx is done, a fatal error occurs
// or every index is disabled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.initialize(ctx); err != nil {
		return err
	}

	used := d.usedDatasources()
	for _, ds := range used {
		if err := ds.Initialize(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, ds := range used {
		g.Go(func() error {
			return ds.Run(gctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return d.loop(gctx)
	})

	g.Go(func() error {
		d.pruneLoop(gctx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	d.log.Info("dispatcher stopped")

	return nil
}

// initialize loads the persisted state of every index and registers its subscriptions.
// A state created from another configuration is wiped when reindexing on config change is enabled.
func (d *Dispatcher) initialize(ctx context.Context) error {
	for _, e := range d.entries {
		r := e.runner

		persisted, err := d.store.GetIndex(ctx, r.Name())
		if err != nil {
			return fmt.Errorf("failed to load state of index %s: %w", r.Name(), err)
		}

		err = r.InitializeState(ctx, persisted)
		if errors.Is(err, state.ErrConfigHashMismatch) && d.cfg.Advanced.ReindexOnConfigChange {
			d.log.Warnw("index configuration changed, reindexing", "index", r.Name(), "level", persisted.Level)

			if err := d.store.DeleteIndex(ctx, r.Name()); err != nil {
				return fmt.Errorf("failed to reset index %s: %w", r.Name(), err)
			}
			d.publish(ctx, notify.Event{Type: notify.EventReindex, Index: r.Name(), Level: persisted.Level})

			err = r.InitializeState(ctx, nil)
		}
		if err != nil {
			return err
		}

		if st := r.State(); st.Status == models.IndexStatusFailed {
			d.log.Warnw("resuming failed index", "index", r.Name(), "level", st.Level)
		}

		r.Subscribe()
	}

	return nil
}

// loop is the gather loop: every tick processes all ready indexes concurrently and sleeps
// when none of them made progress.
func (d *Dispatcher) loop(ctx context.Context) error {
	idle := d.cfg.Advanced.IdleInterval.Duration

	for {
		active := d.active()
		if len(active) == 0 {
			d.log.Info("every index is disabled")
			return nil
		}

		worked, err := d.tick(ctx, active)
		if err != nil {
			return err
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idle):
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context, active []*entry) (bool, error) {
	var (
		mu     sync.Mutex
		worked bool
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range active {
		if !e.runner.Ready() {
			continue
		}

		g.Go(func() error {
			ok, err := d.process(gctx, e)
			if ok {
				mu.Lock()
				worked = true
				mu.Unlock()
			}
			return err
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return worked, nil
	}

	return worked, err
}

// process runs one Process call. Only framework and rollback errors are returned; anything else
// is logged and the index is retried on the next tick.
func (d *Dispatcher) process(ctx context.Context, e *entry) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.runner.State().Status
	start := time.Now()

	worked, err := e.runner.Process(ctx)

	after := e.runner.State()
	if after.Status != before {
		d.publish(ctx, notify.Event{Type: notify.EventStatus, Index: after.Name, Status: after.Status, Level: after.Level})
	}

	if worked {
		tickDuration.WithLabelValues(after.Name).Observe(time.Since(start).Seconds())
	}

	if err == nil || ctx.Err() != nil {
		return worked, nil
	}

	var rollbackErr *reorg.RollbackError
	if common.IsFrameworkError(err) || errors.As(err, &rollbackErr) {
		metrics.ErrorsInc(common.ComponentIndex, metrics.SeverityFatal)
		d.log.Errorw("index failed", "index", after.Name, "error", err)
		return worked, err
	}

	processErrors.WithLabelValues(after.Name).Inc()
	metrics.ErrorsInc(common.ComponentIndex, metrics.SeverityRecoverable)
	d.log.Warnw("index processing failed, retrying on next tick", "index", after.Name, "error", err)

	return worked, nil
}

func (d *Dispatcher) active() []*entry {
	active := make([]*entry, 0, len(d.entries))
	for _, e := range d.entries {
		if e.runner.State().Status != models.IndexStatusDisabled {
			active = append(active, e)
		}
	}
	activeIndexes.Set(float64(len(active)))

	return active
}

// rollbackHook reverts the undo log of an index and announces the rollback.
func (d *Dispatcher) rollbackHook(ctx context.Context, name string, typ models.MessageType, fromLevel, toLevel uint64) error {
	reverted, err := d.store.Rollback(ctx, name, fromLevel, toLevel)
	if err != nil {
		return err
	}

	d.log.Infow("rollback applied", "index", name, "type", typ, "from", fromLevel, "to", toLevel, "reverted", reverted)
	d.publish(ctx, notify.Event{Type: notify.EventRollback, Index: name, Level: toLevel, FromLevel: fromLevel, ToLevel: toLevel})

	return nil
}

// RollbackIndex reverts an index to toLevel outside of the realtime flow.
// The index reloads its level before processing again.
func (d *Dispatcher) RollbackIndex(ctx context.Context, name string, toLevel uint64) (int, error) {
	e, ok := d.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.runner.State()
	if toLevel >= st.Level {
		return 0, fmt.Errorf("%w: index %s is at level %d, target %d", ErrNothingToRollback, name, st.Level, toLevel)
	}

	reverted, err := d.store.Rollback(ctx, name, st.Level, toLevel)
	if err != nil {
		return 0, err
	}
	e.runner.MarkRolledBack()

	d.log.Warnw("index rolled back manually", "index", name, "from", st.Level, "to", toLevel, "reverted", reverted)
	d.publish(ctx, notify.Event{Type: notify.EventRollback, Index: name, Level: toLevel, FromLevel: st.Level, ToLevel: toLevel})

	return reverted, nil
}

// Indexes returns the current state of every index, ordered by name.
func (d *Dispatcher) Indexes() []models.IndexState {
	states := make([]models.IndexState, 0, len(d.entries))
	for _, e := range d.entries {
		states = append(states, e.runner.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })

	return states
}

// Index returns the current state of a single index.
func (d *Dispatcher) Index(name string) (models.IndexState, bool) {
	e, ok := d.byName[name]
	if !ok {
		return models.IndexState{}, false
	}
	return e.runner.State(), true
}

// Prune drops undo records that can no longer be rolled back: everything below
// index level - rollback depth.
func (d *Dispatcher) Prune(ctx context.Context) error {
	depth := d.store.RollbackDepth()

	for _, e := range d.entries {
		st := e.runner.State()
		if st.Level <= depth {
			continue
		}
		if _, err := d.store.PruneUpdates(ctx, st.Name, st.Level-depth); err != nil {
			return err
		}
	}

	return nil
}

// PruneTask exposes Prune as a database maintenance task.
func (d *Dispatcher) PruneTask() db.Task {
	return db.Task{Name: "prune-model-updates", Run: d.Prune}
}

func (d *Dispatcher) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Advanced.PruneInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Prune(ctx); err != nil && ctx.Err() == nil {
				d.log.Warnw("failed to prune model updates", "error", err)
			}
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event notify.Event) {
	if err := d.notifier.Publish(ctx, event); err != nil {
		d.log.Warnw("failed to publish event", "type", event.Type, "index", event.Index, "error", err)
	}
}

// usedDatasources returns the distinct primary datasources of all indexes. Last mile datasources
// are only queried over REST and are not run.
func (d *Dispatcher) usedDatasources() []pkgds.Datasource {
	seen := make(map[string]struct{})
	var used []pkgds.Datasource

	for _, name := range d.cfg.IndexNames() {
		idx := d.cfg.Indexes[name]
		for _, dsName := range idx.Datasources {
			if _, ok := seen[dsName]; ok {
				continue
			}
			seen[dsName] = struct{}{}
			used = append(used, d.datasources[dsName])
		}
	}

	return used
}

